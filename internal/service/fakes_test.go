package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"imss/harvester/internal/domain"
)

var errUpstream = errors.New("upstream unavailable")

// fakeSource serves listings where each row template is the contract id
type fakeSource struct {
	mutex sync.Mutex

	overviews map[string]*domain.ResultsOverview
	pages     map[string][][]domain.ListingRow

	failOverview map[string]bool
	failListing  map[string]int
	failDetail   map[string]bool

	overviewCalls int
	listingCalls  int
	detailCalls   []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		overviews:    make(map[string]*domain.ResultsOverview),
		pages:        make(map[string][][]domain.ListingRow),
		failOverview: make(map[string]bool),
		failListing:  make(map[string]int),
		failDetail:   make(map[string]bool),
	}
}

// addLeaf registers a listing of total contracts split in pages of perPage
func (f *fakeSource) addLeaf(url, idPrefix string, total, perPage int) {
	var pages [][]domain.ListingRow
	for start := 0; start < total; start += perPage {
		var rows []domain.ListingRow
		for i := start; i < start+perPage && i < total; i++ {
			rows = append(rows, domain.ListingRow{Template: fmt.Sprintf("%s%d", idPrefix, i)})
		}
		pages = append(pages, rows)
	}
	f.overviews[url] = &domain.ResultsOverview{Total: total, Pages: len(pages)}
	f.pages[url] = pages
}

func (f *fakeSource) FetchOverview(ctx context.Context, leafURL string) (*domain.ResultsOverview, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.overviewCalls++
	if f.failOverview[leafURL] {
		return nil, errUpstream
	}
	overview, ok := f.overviews[leafURL]
	if !ok {
		return &domain.ResultsOverview{}, nil
	}
	return overview, nil
}

func (f *fakeSource) FetchListingPage(ctx context.Context, leafURL string, page int) ([]domain.ListingRow, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.listingCalls++
	if f.failListing[leafURL] == page {
		return nil, errUpstream
	}
	pages := f.pages[leafURL]
	if page < 1 || page > len(pages) {
		return nil, nil
	}
	return pages[page-1], nil
}

func (f *fakeSource) FetchDetail(ctx context.Context, detailURL string) (string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.detailCalls = append(f.detailCalls, detailURL)
	if f.failDetail[detailURL] {
		return "", errUpstream
	}
	return "detail of " + detailURL, nil
}

type fakeExtractor struct{}

func (fakeExtractor) ExtractStubs(rows []domain.ListingRow) ([]domain.RecordStub, error) {
	stubs := make([]domain.RecordStub, 0, len(rows))
	for _, row := range rows {
		id := domain.RecordID(row.Template)
		stubs = append(stubs, domain.RecordStub{ID: id, URL: id.Path()})
	}
	return stubs, nil
}

func (fakeExtractor) ExtractRecord(stub domain.RecordStub, html string) (*domain.Record, error) {
	record := domain.NewRecord(stub)
	record.Concept = html
	return record, nil
}

// memoryWriter records every write, optionally failing some ids
type memoryWriter struct {
	written []*domain.Record
	fail    map[domain.RecordID]bool
}

func (w *memoryWriter) Write(ctx context.Context, record *domain.Record) error {
	if w.fail[record.ID] {
		return errors.New("disk full")
	}
	w.written = append(w.written, record)
	return nil
}

// fakeDiscoverer returns a fresh copy of the tree on every call
type fakeDiscoverer struct {
	periods []string
	trees   map[string]func() *domain.Period
	fail    map[string]bool
}

func (d *fakeDiscoverer) ListPeriods(ctx context.Context) ([]string, error) {
	return d.periods, nil
}

func (d *fakeDiscoverer) DiscoverPeriod(ctx context.Context, periodID string) (*domain.Period, error) {
	if d.fail[periodID] {
		return nil, errUpstream
	}
	build, ok := d.trees[periodID]
	if !ok {
		return nil, fmt.Errorf("unknown period %s", periodID)
	}
	return build(), nil
}

func leafURL(path string) string {
	return "/?P=imsscomprotipoproddet&leaf=" + path
}

// sampleTree builds three categories:
//
//	A: A1 (leaf), A2 (rubros A2x, A2y)
//	B: B1 (leaf)
//	C: C1 (leaf), C2 (zero total)
func sampleTree(periodID string) *domain.Period {
	return &domain.Period{
		ID: periodID,
		Categories: []*domain.Category{
			{
				ID: "A", Name: "Cat A", Total: "10.00",
				Subcategories: []*domain.Subcategory{
					{ID: "A1", Name: "Sub A1", Total: "5.00", URL: leafURL("A/A1")},
					{
						ID: "A2", Name: "Sub A2", Total: "5.00",
						SubItems: []*domain.SubItem{
							{ID: "A2x", Name: "Rubro x", Total: "2.00", URL: leafURL("A/A2/A2x")},
							{ID: "A2y", Name: "Rubro y", Total: "3.00", URL: leafURL("A/A2/A2y")},
						},
					},
				},
			},
			{
				ID: "B", Name: "Cat B", Total: "1.00",
				Subcategories: []*domain.Subcategory{
					{ID: "B1", Name: "Sub B1", Total: "1.00", URL: leafURL("B/B1")},
				},
			},
			{
				ID: "C", Name: "Cat C", Total: "7.00",
				Subcategories: []*domain.Subcategory{
					{ID: "C1", Name: "Sub C1", Total: "7.00", URL: leafURL("C/C1")},
					{ID: "C2", Name: "Sub C2", Total: "0.00", URL: leafURL("C/C2")},
				},
			},
		},
	}
}

func leafPaths(leaves []domain.Leaf) []string {
	paths := make([]string, 0, len(leaves))
	for _, l := range leaves {
		paths = append(paths, l.Path().String())
	}
	return paths
}
