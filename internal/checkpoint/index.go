package checkpoint

import (
	"encoding/json"
	"errors"

	"imss/harvester/internal/domain"
)

// Index is the in-memory view of a period's log: which contracts were
// already captured and how many per tree path.
type Index struct {
	period  string
	seen    map[domain.RecordID]struct{}
	counts  map[domain.TreePath]int
	corrupt []*domain.CorruptRecordError
}

func newIndex(period string) *Index {
	return &Index{
		period: period,
		seen:   make(map[domain.RecordID]struct{}),
		counts: make(map[domain.TreePath]int),
	}
}

// NewIndex builds an index from stubs, mostly useful for tests and dry runs
func NewIndex(period string, stubs ...domain.RecordStub) *Index {
	idx := newIndex(period)
	for _, s := range stubs {
		idx.Add(s)
	}
	return idx
}

// Add marks a contract as captured. A contract counts once, under the
// first path it was written for; a duplicated log line does not inflate
// the path count.
func (i *Index) Add(stub domain.RecordStub) {
	if _, ok := i.seen[stub.ID]; ok {
		return
	}
	i.seen[stub.ID] = struct{}{}
	i.counts[stub.Path()]++
}

// loadLine indexes one log line. Blank lines are ignored; a line that does
// not decode, or has no id, is recorded as corrupt and dropped.
func (i *Index) loadLine(number int, line []byte) {
	if len(line) == 0 {
		return
	}

	var stub domain.RecordStub
	if err := json.Unmarshal(line, &stub); err != nil {
		i.addCorrupt(number, err)
		return
	}
	if stub.ID == "" {
		i.addCorrupt(number, errors.New("missing id_ficha"))
		return
	}

	i.Add(stub)
}

func (i *Index) addCorrupt(line int, err error) {
	i.corrupt = append(i.corrupt, &domain.CorruptRecordError{
		Period: i.period,
		Line:   line,
		Err:    err,
	})
}

// Period returns the period the index was loaded for
func (i *Index) Period() string {
	return i.period
}

// Contains reports whether the contract was captured in a prior run
func (i *Index) Contains(id domain.RecordID) bool {
	_, ok := i.seen[id]
	return ok
}

// CountFor returns how many captured contracts were listed under path
func (i *Index) CountFor(path domain.TreePath) int {
	return i.counts[path]
}

// Len returns the number of distinct captured contracts
func (i *Index) Len() int {
	return len(i.seen)
}

// Corrupt returns the log lines dropped while loading
func (i *Index) Corrupt() []*domain.CorruptRecordError {
	return i.corrupt
}
