package report

import (
	"io"
	"strconv"

	"imss/harvester/internal/domain"

	"github.com/jedib0t/go-pretty/v6/table"
)

// RenderTable prints the per-period outcome of a run, followed by the
// failed leaves and contracts when there are any
func RenderTable(w io.Writer, result *domain.RunResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Period", "Contracts", "Loaded", "New", "Corrupt", "Leaves", "Skipped", "Failed leaves", "Failed contracts"})

	var contracts, loaded, fresh, corrupt, leaves, skipped, failedLeaves, failedRecords int
	for _, p := range result.Periods {
		count := 0
		if p.Period != nil {
			count = p.Period.ContractCount
		}
		t.AppendRow(table.Row{
			periodID(p), count, p.Loaded, p.NewRecords, len(p.Corrupt),
			p.LeavesVisited, p.LeavesSkipped, len(p.FailedLeaves), len(p.FailedRecords),
		})

		contracts += count
		loaded += p.Loaded
		fresh += p.NewRecords
		corrupt += len(p.Corrupt)
		leaves += p.LeavesVisited
		skipped += p.LeavesSkipped
		failedLeaves += len(p.FailedLeaves)
		failedRecords += len(p.FailedRecords)
	}

	t.AppendFooter(table.Row{"Total", contracts, loaded, fresh, corrupt, leaves, skipped, failedLeaves, failedRecords})
	t.SetStyle(table.StyleRounded)
	t.Render()

	renderFailures(w, result)
}

func renderFailures(w io.Writer, result *domain.RunResult) {
	leaves := result.FailedLeaves()
	records := result.FailedRecords()
	if len(leaves) == 0 && len(records) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Period", "Path", "Target", "Error"})

	for _, f := range leaves {
		target := string(f.Stage)
		if f.Stage == domain.LeafStageListing {
			target = "page " + strconv.Itoa(f.Page)
		}
		t.AppendRow(table.Row{f.Leaf.PeriodID, f.Leaf.Path(), target, f.Err})
	}
	for _, f := range records {
		t.AppendRow(table.Row{f.Stub.Period, f.Stub.Path(), "contract " + f.Stub.ID.String(), f.Err})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}

func periodID(p *domain.PeriodResult) string {
	if p.Period == nil {
		return "?"
	}
	return p.Period.ID
}
