package domain

// OutputMode selects where harvested contracts go
type OutputMode string

const (
	// OutputStdout keeps contracts in memory and emits the tree as JSON at the end
	OutputStdout OutputMode = "stdout"
	// OutputFile appends every contract to the period's checkpoint log
	OutputFile OutputMode = "file"
)

func (m OutputMode) Valid() bool {
	return m == OutputStdout || m == OutputFile
}

// RunConfig is the immutable configuration of one harvest run
type RunConfig struct {
	Periods   []string
	StartFrom []string
	Output    OutputMode
	Verbose   bool
	// Continue takes the resume path from the stored progress of the first period
	Continue bool
}

// PeriodResult is the outcome of harvesting one period
type PeriodResult struct {
	Period        *Period
	Loaded        int
	Corrupt       []*CorruptRecordError
	NewRecords    int
	LeavesVisited int
	LeavesSkipped int
	FailedLeaves  []*LeafFetchError
	FailedRecords []*RecordFetchError
	CountsByPath  map[TreePath]int
}

// RunResult is the best-effort outcome of a run
type RunResult struct {
	Periods []*PeriodResult
}

// FailedLeaves returns every failed leaf across periods
func (r *RunResult) FailedLeaves() []*LeafFetchError {
	var out []*LeafFetchError
	for _, p := range r.Periods {
		out = append(out, p.FailedLeaves...)
	}
	return out
}

// FailedRecords returns every failed record across periods
func (r *RunResult) FailedRecords() []*RecordFetchError {
	var out []*RecordFetchError
	for _, p := range r.Periods {
		out = append(out, p.FailedRecords...)
	}
	return out
}

// NewRecords counts the contracts written by the run
func (r *RunResult) NewRecords() int {
	total := 0
	for _, p := range r.Periods {
		total += p.NewRecords
	}
	return total
}
