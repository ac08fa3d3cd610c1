package service

import (
	"imss/harvester/internal/domain"

	log "github.com/sirupsen/logrus"
)

// VisitFunc handles one leaf. A returned error stops the walk.
type VisitFunc func(leaf domain.Leaf) error

// Walk visits every leaf of the period depth-first in sibling order, asking
// the cursor about each node before descending. Nodes with a zero declared
// total are pruned without error.
func Walk(period *domain.Period, cursor *ResumeCursor, visit VisitFunc) error {
	for _, cat := range period.Categories {
		if cursor.ShouldSkip(LevelCategory, cat.ID) {
			log.Debugf("⏭️ Skipping category %s (%s)", cat.ID, cat.Name)
			continue
		}
		if domain.IsZeroTotal(cat.Total) || len(cat.Subcategories) == 0 {
			log.Debugf("Category %s (%s) has nothing to harvest", cat.ID, cat.Name)
			continue
		}

		log.Debugf("📂 Category %s (%s)", cat.ID, cat.Name)
		for _, sub := range cat.Subcategories {
			if err := walkSubcategory(period.ID, cat, sub, cursor, visit); err != nil {
				return err
			}
		}
	}
	return nil
}

func walkSubcategory(periodID string, cat *domain.Category, sub *domain.Subcategory, cursor *ResumeCursor, visit VisitFunc) error {
	if cursor.ShouldSkip(LevelSubcategory, sub.ID) {
		log.Debugf("⏭️ Skipping subcategory %s (%s)", sub.ID, sub.Name)
		return nil
	}
	if domain.IsZeroTotal(sub.Total) {
		log.Debugf("Subcategory %s (%s) has a zero total", sub.ID, sub.Name)
		return nil
	}

	leaf := domain.Leaf{
		PeriodID:        periodID,
		CategoryID:      cat.ID,
		CategoryName:    cat.Name,
		SubcategoryID:   sub.ID,
		SubcategoryName: sub.Name,
		Subcategory:     sub,
	}

	if sub.IsLeaf() {
		leaf.URL = sub.URL
		return visit(leaf)
	}

	for _, item := range sub.SubItems {
		if cursor.ShouldSkip(LevelSubItem, item.ID) {
			log.Debugf("⏭️ Skipping rubro %s (%s)", item.ID, item.Name)
			continue
		}
		if item.URL == "" {
			continue
		}

		itemLeaf := leaf
		itemLeaf.SubItemID = item.ID
		itemLeaf.SubItemName = item.Name
		itemLeaf.URL = item.URL
		itemLeaf.Subcategory = nil
		itemLeaf.SubItem = item
		if err := visit(itemLeaf); err != nil {
			return err
		}
	}
	return nil
}

// Leaves flattens the walk into a slice
func Leaves(period *domain.Period, cursor *ResumeCursor) []domain.Leaf {
	var leaves []domain.Leaf
	_ = Walk(period, cursor, func(leaf domain.Leaf) error {
		leaves = append(leaves, leaf)
		return nil
	})
	return leaves
}
