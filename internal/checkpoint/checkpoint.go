package checkpoint

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"imss/harvester/internal/domain"

	log "github.com/sirupsen/logrus"
)

// Store reads and appends the per-period contract logs
type Store interface {
	Load(periodID string) (*Index, error)
	Append(periodID string, record *domain.Record) error
	Close() error
}

type fileStore struct {
	dir   string
	mutex sync.Mutex
	files map[string]*os.File
}

// NewFileStore creates a store writing one JSON-lines file per period under dir
func NewFileStore(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	return &fileStore{
		dir:   dir,
		files: make(map[string]*os.File),
	}, nil
}

// LogPath returns the log file of a period
func LogPath(dir, periodID string) string {
	return filepath.Join(dir, periodID+".json")
}

func (s *fileStore) Load(periodID string) (*Index, error) {
	index := newIndex(periodID)

	path := LogPath(s.dir, periodID)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return index, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint %s: %w", path, err)
	}
	defer file.Close()

	log.Debugf("Reading previously harvested contracts for %s", periodID)

	reader := bufio.NewReader(file)
	lineNumber := 0
	for {
		line, readErr := reader.ReadBytes('\n')
		if len(line) > 0 {
			lineNumber++
			index.loadLine(lineNumber, bytes.TrimSpace(line))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("failed to read checkpoint %s: %w", path, readErr)
		}
	}

	if len(index.corrupt) > 0 {
		log.Warnf("⚠️ Checkpoint for %s has %d corrupt lines that were skipped", periodID, len(index.corrupt))
		for _, c := range index.corrupt {
			log.Warnf("⚠️ %v", c)
		}
	}
	log.Infof("📒 Found %d previously harvested contracts for %s", index.Len(), periodID)

	return index, nil
}

func (s *fileStore) Append(periodID string, record *domain.Record) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode contract %s: %w", record.ID, err)
	}
	line = append(line, '\n')

	s.mutex.Lock()
	defer s.mutex.Unlock()

	file, err := s.file(periodID)
	if err != nil {
		return err
	}

	// One Write per line keeps every append a complete line
	if _, err := file.Write(line); err != nil {
		return fmt.Errorf("failed to append contract %s: %w", record.ID, err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync checkpoint %s: %w", periodID, err)
	}

	return nil
}

func (s *fileStore) file(periodID string) (*os.File, error) {
	if f, ok := s.files[periodID]; ok {
		return f, nil
	}

	path := LogPath(s.dir, periodID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint %s for append: %w", path, err)
	}

	if err := terminateLastLine(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to repair checkpoint %s: %w", path, err)
	}

	s.files[periodID] = f
	return f, nil
}

// terminateLastLine closes a line left open by an interrupted run so the
// next append does not glue a valid record onto the truncated one.
func terminateLastLine(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}

	_, err = f.Write([]byte{'\n'})
	return err
}

func (s *fileStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var errs []error
	for period, f := range s.files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close checkpoint %s: %w", period, err))
		}
		delete(s.files, period)
	}
	return errors.Join(errs...)
}
