package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"imss/harvester/internal/domain"

	log "github.com/sirupsen/logrus"
)

// SummaryPath returns the summary file of a period inside dir
func SummaryPath(dir, periodID string) string {
	return filepath.Join(dir, periodID+"_summary.json")
}

// WriteSummary writes the period tree with its contract counts, leaving the
// contracts themselves out. The file is replaced atomically.
func WriteSummary(dir string, period *domain.Period) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(Summarize(period), "", "    ")
	if err != nil {
		return "", fmt.Errorf("failed to encode summary for %s: %w", period.ID, err)
	}

	path := SummaryPath(dir, period.ID)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write summary for %s: %w", period.ID, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to replace summary for %s: %w", period.ID, err)
	}

	log.Debugf("Summary for %s written to %s", period.ID, path)
	return path, nil
}

// WriteTrees emits the harvested periods, contracts included, as indented JSON
func WriteTrees(w io.Writer, periods []*domain.Period) error {
	if periods == nil {
		periods = []*domain.Period{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "    ")
	if err := encoder.Encode(periods); err != nil {
		return fmt.Errorf("failed to encode periods: %w", err)
	}
	return nil
}

// Summarize copies the tree of a period without any attached contracts
func Summarize(period *domain.Period) *domain.Period {
	out := &domain.Period{
		ID:            period.ID,
		Total:         period.Total,
		ContractCount: period.ContractCount,
		Categories:    make([]*domain.Category, 0, len(period.Categories)),
	}

	for _, cat := range period.Categories {
		c := *cat
		c.Subcategories = nil
		for _, sub := range cat.Subcategories {
			s := *sub
			s.Contracts = nil
			s.SubItems = nil
			for _, item := range sub.SubItems {
				i := *item
				i.Contracts = nil
				s.SubItems = append(s.SubItems, &i)
			}
			c.Subcategories = append(c.Subcategories, &s)
		}
		out.Categories = append(out.Categories, &c)
	}

	return out
}
