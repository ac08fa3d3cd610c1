package domain

import "fmt"

// DiscoveryError means the tree for a period could not be built. It aborts the run.
type DiscoveryError struct {
	Period string
	Err    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed for period %s: %v", e.Period, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// LeafStage names the leaf step that failed
type LeafStage string

const (
	LeafStageOverview LeafStage = "overview"
	LeafStageListing  LeafStage = "listing"
)

// LeafFetchError aborts a single leaf; the walk continues with the next sibling
type LeafFetchError struct {
	Leaf  Leaf
	Stage LeafStage
	Page  int
	Err   error
}

func (e *LeafFetchError) Error() string {
	if e.Stage == LeafStageListing {
		return fmt.Sprintf("leaf %s: listing page %d failed: %v", e.Leaf.Path(), e.Page, e.Err)
	}
	return fmt.Sprintf("leaf %s: %s failed: %v", e.Leaf.Path(), e.Stage, e.Err)
}

func (e *LeafFetchError) Unwrap() error {
	return e.Err
}

// RecordFetchError is a failed detail fetch or parse for one stub
type RecordFetchError struct {
	Stub RecordStub
	Err  error
}

func (e *RecordFetchError) Error() string {
	return fmt.Sprintf("record %s (%s): %v", e.Stub.ID, e.Stub.Path(), e.Err)
}

func (e *RecordFetchError) Unwrap() error {
	return e.Err
}

// CorruptRecordError marks a checkpoint log line that could not be loaded
type CorruptRecordError struct {
	Period string
	Line   int
	Err    error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("checkpoint %s line %d is corrupt: %v", e.Period, e.Line, e.Err)
}

func (e *CorruptRecordError) Unwrap() error {
	return e.Err
}
