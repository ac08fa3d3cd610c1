package service

import (
	"context"
	"errors"
	"fmt"

	"imss/harvester/internal/checkpoint"
	"imss/harvester/internal/domain"
	"imss/harvester/internal/domain/task"
	"imss/harvester/internal/queue"
	"imss/harvester/internal/repository"
	"imss/harvester/internal/state"

	log "github.com/sirupsen/logrus"
)

// Discoverer builds the category tree of each period
type Discoverer interface {
	ListPeriods(ctx context.Context) ([]string, error)
	DiscoverPeriod(ctx context.Context, periodID string) (*domain.Period, error)
}

type Service struct {
	discoverer Discoverer
	source     PageSource
	extractor  Extractor
	store      checkpoint.Store
	progress   state.ProgressStore
	failures   queue.FailureQueue
	mirror     repository.RecordRepository
	delay      Delay
}

// NewService wires the harvest engine. progress, failures and mirror are
// optional and may be nil.
func NewService(
	discoverer Discoverer,
	source PageSource,
	extractor Extractor,
	store checkpoint.Store,
	progress state.ProgressStore,
	failures queue.FailureQueue,
	mirror repository.RecordRepository,
	delay Delay,
) *Service {
	return &Service{
		discoverer: discoverer,
		source:     source,
		extractor:  extractor,
		store:      store,
		progress:   progress,
		failures:   failures,
		mirror:     mirror,
		delay:      delay,
	}
}

// ListPeriods returns every period the portal offers
func (s *Service) ListPeriods(ctx context.Context) ([]string, error) {
	periods, err := s.discoverer.ListPeriods(ctx)
	if err != nil {
		return nil, &domain.DiscoveryError{Period: "*", Err: err}
	}
	return periods, nil
}

// Run harvests the configured periods in order. Leaf and contract failures
// are collected in the result; a discovery failure or a cancelled context
// stops the run and is returned alongside what was harvested so far.
func (s *Service) Run(ctx context.Context, cfg domain.RunConfig) (*domain.RunResult, error) {
	if !cfg.Output.Valid() {
		return nil, fmt.Errorf("invalid output mode %q", cfg.Output)
	}

	periods := cfg.Periods
	if len(periods) == 0 {
		var err error
		if periods, err = s.ListPeriods(ctx); err != nil {
			return nil, err
		}
	}

	periods, startFrom, err := s.resumePlan(ctx, cfg, periods)
	if err != nil {
		return nil, err
	}

	cursor, err := NewResumeCursor(startFrom)
	if err != nil {
		return nil, err
	}

	writer := NewWriter(cfg.Output, s.store, s.mirror)
	defer writer.Close()
	harvester := NewHarvester(s.source, s.extractor, writer, s.delay)

	log.Infof("🚀 Harvesting %d periods: %v", len(periods), periods)
	if len(startFrom) > 0 {
		log.Infof("⏩ Starting from %v", startFrom)
	}

	result := &domain.RunResult{}
	for _, periodID := range periods {
		periodResult, err := s.runPeriod(ctx, periodID, cfg.Output, cursor, harvester, writer)
		if periodResult != nil {
			result.Periods = append(result.Periods, periodResult)
		}
		if err != nil {
			return result, err
		}
	}

	if cursor.Active() {
		log.Warnf("⚠️ Start position %v was never reached, nothing after it was harvested", startFrom)
	}

	log.Infof("🎉 Run finished: %d new contracts, %d failed leaves, %d failed contracts",
		result.NewRecords(), len(result.FailedLeaves()), len(result.FailedRecords()))
	return result, nil
}

// resumePlan resolves --continue into the periods left to run and the path to start from
func (s *Service) resumePlan(ctx context.Context, cfg domain.RunConfig, periods []string) ([]string, []string, error) {
	if !cfg.Continue || len(cfg.StartFrom) > 0 {
		return periods, cfg.StartFrom, nil
	}
	if s.progress == nil {
		log.Warnf("⚠️ --continue needs redis to be enabled, starting from the beginning")
		return periods, nil, nil
	}

	for i, periodID := range periods {
		leaf, err := s.progress.GetLastLeaf(ctx, periodID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read progress: %w", err)
		}
		if leaf != nil {
			log.Infof("🔄 Continue from %s in period %s", leaf.Path(), periodID)
			return periods[i:], state.ResumePath(leaf), nil
		}
	}

	return periods, nil, nil
}

func (s *Service) runPeriod(
	ctx context.Context,
	periodID string,
	mode domain.OutputMode,
	cursor *ResumeCursor,
	harvester *Harvester,
	writer *Writer,
) (*domain.PeriodResult, error) {
	log.Infof("📅 Processing period %s", periodID)

	period, err := s.discoverer.DiscoverPeriod(ctx, periodID)
	if err != nil {
		return nil, &domain.DiscoveryError{Period: periodID, Err: err}
	}
	if err := validateTree(period); err != nil {
		return nil, &domain.DiscoveryError{Period: periodID, Err: err}
	}

	index, err := s.store.Load(periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint for %s: %w", periodID, err)
	}

	result := &domain.PeriodResult{
		Period:  period,
		Loaded:  index.Len(),
		Corrupt: index.Corrupt(),
	}

	walkErr := Walk(period, cursor, func(leaf domain.Leaf) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		result.LeavesVisited++

		records, failed, err := harvester.Harvest(ctx, leaf, index)
		if mode == domain.OutputStdout {
			attach(leaf, records)
		}
		if len(failed) > 0 {
			result.FailedRecords = append(result.FailedRecords, failed...)
			s.enqueueRecords(ctx, failed)
		}

		if err != nil {
			var leafErr *domain.LeafFetchError
			if !errors.As(err, &leafErr) {
				return err
			}
			log.Errorf("❌ %v", leafErr)
			result.FailedLeaves = append(result.FailedLeaves, leafErr)
			s.enqueueLeaf(ctx, leafErr)
			return nil
		}

		if mode == domain.OutputFile {
			s.saveProgress(ctx, leaf)
		}
		return nil
	})

	result.NewRecords = writer.Total(periodID)
	result.CountsByPath = writer.Counts(periodID)
	applyCounts(period, index, result.CountsByPath)

	if walkErr != nil {
		return result, walkErr
	}

	result.LeavesSkipped = countLeaves(period) - result.LeavesVisited
	if mode == domain.OutputFile {
		s.clearProgress(ctx, periodID)
	}

	log.Infof("✅ Completed period %s: %d leaves, %d new contracts, %d failed leaves, %d failed contracts",
		periodID, result.LeavesVisited, result.NewRecords, len(result.FailedLeaves), len(result.FailedRecords))
	return result, nil
}

// FetchContract fetches and parses a single contract by id
func (s *Service) FetchContract(ctx context.Context, id string) (*domain.Record, error) {
	recordID := domain.RecordID(id)
	stub := domain.RecordStub{ID: recordID, URL: recordID.Path()}

	html, err := s.source.FetchDetail(ctx, stub.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch contract %s: %w", id, err)
	}

	record, err := s.extractor.ExtractRecord(stub, html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract %s: %w", id, err)
	}
	return record, nil
}

func validateTree(period *domain.Period) error {
	for _, cat := range period.Categories {
		for _, sub := range cat.Subcategories {
			if err := sub.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

func attach(leaf domain.Leaf, records []*domain.Record) {
	if len(records) == 0 {
		return
	}
	switch {
	case leaf.SubItem != nil:
		leaf.SubItem.Contracts = append(leaf.SubItem.Contracts, records...)
	case leaf.Subcategory != nil:
		leaf.Subcategory.Contracts = append(leaf.Subcategory.Contracts, records...)
	}
}

// applyCounts sets contract_count on every node: contracts captured by
// earlier runs plus the ones written now
func applyCounts(period *domain.Period, index *checkpoint.Index, written map[domain.TreePath]int) {
	period.ContractCount = 0
	for _, cat := range period.Categories {
		cat.ContractCount = 0
		for _, sub := range cat.Subcategories {
			sub.ContractCount = 0
			if sub.IsLeaf() {
				path := domain.NewTreePath(cat.ID, sub.ID, "")
				sub.ContractCount = index.CountFor(path) + written[path]
			}
			for _, item := range sub.SubItems {
				path := domain.NewTreePath(cat.ID, sub.ID, item.ID)
				item.ContractCount = index.CountFor(path) + written[path]
				sub.ContractCount += item.ContractCount
			}
			cat.ContractCount += sub.ContractCount
		}
		period.ContractCount += cat.ContractCount
	}
}

func countLeaves(period *domain.Period) int {
	cursor, _ := NewResumeCursor(nil)
	return len(Leaves(period, cursor))
}

// saveProgress records the last finished leaf. Only file mode persists
// contracts, so only file mode may move the resume point.
func (s *Service) saveProgress(ctx context.Context, leaf domain.Leaf) {
	if s.progress == nil {
		return
	}
	if err := s.progress.SetLastLeaf(ctx, leaf); err != nil {
		log.Errorf("❌ Failed to save progress at %s: %v", leaf.Path(), err)
	}
}

func (s *Service) clearProgress(ctx context.Context, periodID string) {
	if s.progress == nil {
		return
	}
	if err := s.progress.Clear(ctx, periodID); err != nil {
		log.Errorf("❌ Failed to clear progress for %s: %v", periodID, err)
	}
}

func (s *Service) enqueueLeaf(ctx context.Context, leafErr *domain.LeafFetchError) {
	if s.failures == nil {
		return
	}
	retryTask := &task.LeafRetryTask{
		Leaf:  leafErr.Leaf,
		Stage: leafErr.Stage,
		Page:  leafErr.Page,
		Error: leafErr.Err.Error(),
	}
	if _, err := s.failures.AddTask(ctx, retryTask); err != nil {
		log.Errorf("❌ Failed to add leaf %s to retry queue: %v", leafErr.Leaf.Path(), err)
	}
}

func (s *Service) enqueueRecords(ctx context.Context, failed []*domain.RecordFetchError) {
	if s.failures == nil {
		return
	}
	for _, f := range failed {
		retryTask := &task.RecordRetryTask{
			Stub:  f.Stub,
			Error: f.Err.Error(),
		}
		if _, err := s.failures.AddTask(ctx, retryTask); err != nil {
			log.Errorf("❌ Failed to add contract %s to retry queue: %v", f.Stub.ID, err)
		}
	}
}
