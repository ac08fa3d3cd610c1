package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"imss/harvester/internal/checkpoint"
	"imss/harvester/internal/domain"
	"imss/harvester/internal/repository"

	log "github.com/sirupsen/logrus"
)

const mirrorBuffer = 256

// Writer persists harvested contracts and keeps per-path counts for the
// run summary. The counts are never used to decide what to fetch.
type Writer struct {
	mode   domain.OutputMode
	store  checkpoint.Store
	mirror repository.RecordRepository

	mutex  sync.Mutex
	counts map[string]map[domain.TreePath]int

	mirrorCh   chan *domain.Record
	mirrorDone chan struct{}
	closeOnce  sync.Once
}

// NewWriter creates a writer. In file mode every record is appended to the
// period's checkpoint log; in stdout mode records only stay in memory. When
// mirror is set, written records are copied to it in the background; when
// the mirror falls behind by more than mirrorBuffer records the extra ones
// are dropped with a warning.
func NewWriter(mode domain.OutputMode, store checkpoint.Store, mirror repository.RecordRepository) *Writer {
	w := &Writer{
		mode:   mode,
		store:  store,
		mirror: mirror,
		counts: make(map[string]map[domain.TreePath]int),
	}

	if mirror != nil {
		w.mirrorCh = make(chan *domain.Record, mirrorBuffer)
		w.mirrorDone = make(chan struct{})
		go w.runMirror()
	}
	return w
}

func (w *Writer) Write(ctx context.Context, record *domain.Record) error {
	if w.mode == domain.OutputFile {
		if err := w.store.Append(record.Period, record); err != nil {
			return fmt.Errorf("failed to append contract %s: %w", record.ID, err)
		}
	}

	w.mutex.Lock()
	byPath, ok := w.counts[record.Period]
	if !ok {
		byPath = make(map[domain.TreePath]int)
		w.counts[record.Period] = byPath
	}
	byPath[record.Path()]++
	w.mutex.Unlock()

	if w.mirrorCh != nil {
		select {
		case w.mirrorCh <- record:
		default:
			log.Warnf("⚠️ Mirror queue is full, contract %s is not mirrored", record.ID)
		}
	}

	return nil
}

// Counts returns the contracts written this run for a period, by path
func (w *Writer) Counts(period string) map[domain.TreePath]int {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	out := make(map[domain.TreePath]int, len(w.counts[period]))
	for path, n := range w.counts[period] {
		out[path] = n
	}
	return out
}

// Total returns how many contracts were written for a period
func (w *Writer) Total(period string) int {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	total := 0
	for _, n := range w.counts[period] {
		total += n
	}
	return total
}

func (w *Writer) runMirror() {
	defer close(w.mirrorDone)

	for record := range w.mirrorCh {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := w.mirror.SaveRecord(ctx, record); err != nil {
			log.Errorf("❌ Failed to mirror contract %s: %v", record.ID, err)
		}
		cancel()
	}
}

// Close waits for pending mirror writes
func (w *Writer) Close() {
	w.closeOnce.Do(func() {
		if w.mirrorCh == nil {
			return
		}
		close(w.mirrorCh)
		<-w.mirrorDone
	})
}
