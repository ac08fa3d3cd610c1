package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"imss/harvester/internal/checkpoint"
	"imss/harvester/internal/domain"

	log "github.com/sirupsen/logrus"
)

// PageSource fetches the raw pages of the portal
type PageSource interface {
	FetchOverview(ctx context.Context, leafURL string) (*domain.ResultsOverview, error)
	// FetchListingPage returns the rows of a 1-indexed listing page
	FetchListingPage(ctx context.Context, leafURL string, page int) ([]domain.ListingRow, error)
	FetchDetail(ctx context.Context, detailURL string) (string, error)
}

// Extractor turns raw pages into domain values
type Extractor interface {
	ExtractStubs(rows []domain.ListingRow) ([]domain.RecordStub, error)
	ExtractRecord(stub domain.RecordStub, html string) (*domain.Record, error)
}

// RecordWriter persists finished records
type RecordWriter interface {
	Write(ctx context.Context, record *domain.Record) error
}

// Delay is the randomised pause between listing pages. A zero Max disables it.
type Delay struct {
	Min time.Duration
	Max time.Duration
}

func (d Delay) next() time.Duration {
	if d.Max <= 0 {
		return 0
	}
	if d.Max <= d.Min {
		return d.Max
	}
	return d.Min + rand.N(d.Max-d.Min+1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Harvester collects the unseen contracts of one leaf
type Harvester struct {
	source    PageSource
	extractor Extractor
	writer    RecordWriter
	delay     Delay
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewHarvester(source PageSource, extractor Extractor, writer RecordWriter, delay Delay) *Harvester {
	return &Harvester{
		source:    source,
		extractor: extractor,
		writer:    writer,
		delay:     delay,
		sleep:     sleepContext,
	}
}

// Harvest fetches the leaf's listing, skips contracts already in the index
// and writes the rest. Overview and listing failures abort the leaf with a
// LeafFetchError; a failed contract is collected and the leaf goes on.
// The only other error returned is a context error.
func (h *Harvester) Harvest(ctx context.Context, leaf domain.Leaf, index *checkpoint.Index) ([]*domain.Record, []*domain.RecordFetchError, error) {
	overview, err := h.source.FetchOverview(ctx, leaf.URL)
	if err != nil {
		return nil, nil, h.leafError(ctx, leaf, domain.LeafStageOverview, 0, err)
	}

	path := leaf.Path()
	if index.CountFor(path) == overview.Total {
		log.Debugf("✅ %s unchanged since last run (%d contracts)", path, overview.Total)
		return nil, nil, nil
	}
	if overview.Total == 0 || overview.Pages == 0 {
		return nil, nil, nil
	}

	log.Infof("🔎 %s %s: %d contracts in %d pages", path, leaf.Name(), overview.Total, overview.Pages)

	stubs, err := h.collectStubs(ctx, leaf, overview.Pages)
	if err != nil {
		return nil, nil, err
	}

	var (
		records []*domain.Record
		failed  []*domain.RecordFetchError
		skipped int
	)
	for i, stub := range stubs {
		if err := ctx.Err(); err != nil {
			return records, failed, err
		}
		if index.Contains(stub.ID) {
			skipped++
			continue
		}

		log.Debugf("Getting details for contract %d of %d (%s)", i+1, len(stubs), stub.ID)
		record, err := h.fetchRecord(ctx, stub)
		if err != nil {
			if ctx.Err() != nil {
				return records, failed, ctx.Err()
			}
			log.Warnf("⚠️ Contract %s failed: %v", stub.ID, err)
			failed = append(failed, &domain.RecordFetchError{Stub: stub, Err: err})
			continue
		}
		records = append(records, record)
	}

	log.Infof("📥 %s: %d new, %d already harvested, %d failed", path, len(records), skipped, len(failed))
	return records, failed, nil
}

func (h *Harvester) collectStubs(ctx context.Context, leaf domain.Leaf, pages int) ([]domain.RecordStub, error) {
	var stubs []domain.RecordStub
	for page := 1; page <= pages; page++ {
		if page > 1 {
			if d := h.delay.next(); d > 0 {
				if err := h.sleep(ctx, d); err != nil {
					return nil, err
				}
			}
		}

		rows, err := h.source.FetchListingPage(ctx, leaf.URL, page)
		if err != nil {
			return nil, h.leafError(ctx, leaf, domain.LeafStageListing, page, err)
		}

		pageStubs, err := h.extractor.ExtractStubs(rows)
		if err != nil {
			return nil, h.leafError(ctx, leaf, domain.LeafStageListing, page, err)
		}

		for i := range pageStubs {
			leaf.Tag(&pageStubs[i])
		}
		stubs = append(stubs, pageStubs...)
		log.Debugf("Page %d of %d: %d contracts listed so far", page, pages, len(stubs))
	}
	return stubs, nil
}

func (h *Harvester) fetchRecord(ctx context.Context, stub domain.RecordStub) (*domain.Record, error) {
	html, err := h.source.FetchDetail(ctx, stub.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch detail: %w", err)
	}

	record, err := h.extractor.ExtractRecord(stub, html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse detail: %w", err)
	}

	if err := h.writer.Write(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to write contract: %w", err)
	}
	return record, nil
}

// leafError wraps a fetch failure, passing context errors through untouched
func (h *Harvester) leafError(ctx context.Context, leaf domain.Leaf, stage domain.LeafStage, page int, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &domain.LeafFetchError{Leaf: leaf, Stage: stage, Page: page, Err: err}
}
