package service

import (
	"errors"
	"testing"

	"imss/harvester/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalkCarriesPathContext(t *testing.T) {
	cursor, err := NewResumeCursor(nil)
	require.NoError(t, err)

	tree := sampleTree("2019")
	leaves := Leaves(tree, cursor)
	require.Len(t, leaves, 5)

	direct := leaves[0]
	assert.Equal(t, "2019", direct.PeriodID)
	assert.Equal(t, "Cat A", direct.CategoryName)
	assert.Equal(t, "Sub A1", direct.SubcategoryName)
	assert.Empty(t, direct.SubItemID)
	assert.Equal(t, leafURL("A/A1"), direct.URL)
	assert.Same(t, tree.Categories[0].Subcategories[0], direct.Subcategory)
	assert.Nil(t, direct.SubItem)

	rubro := leaves[2]
	assert.Equal(t, domain.TreePath("A/A2/A2y"), rubro.Path())
	assert.Equal(t, "Rubro y", rubro.Name())
	assert.Equal(t, "Sub A2", rubro.SubcategoryName)
	assert.Same(t, tree.Categories[0].Subcategories[1].SubItems[1], rubro.SubItem)
	assert.Nil(t, rubro.Subcategory)
}

func TestWalkPrunesEmptyNodes(t *testing.T) {
	tree := &domain.Period{
		ID: "2019",
		Categories: []*domain.Category{
			{ID: "Z", Total: "0.00", Subcategories: []*domain.Subcategory{
				{ID: "Z1", Total: "3.00", URL: leafURL("Z/Z1")},
			}},
			{ID: "E", Total: "5.00"},
			{ID: "M", Total: "$1,000.00", Subcategories: []*domain.Subcategory{
				{ID: "M0", Total: "0", URL: leafURL("M/M0")},
				{ID: "M1", Total: "2.00"},
				{ID: "M2", Total: "2.00", SubItems: []*domain.SubItem{
					{ID: "noURL", Total: "1.00"},
					{ID: "ok", Total: "1.00", URL: leafURL("M/M2/ok")},
				}},
			}},
		},
	}

	cursor, err := NewResumeCursor(nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"M/M2/ok"}, leafPaths(Leaves(tree, cursor)))
}

func TestWalkStopsOnVisitError(t *testing.T) {
	cursor, err := NewResumeCursor(nil)
	require.NoError(t, err)

	stop := errors.New("stop")
	visited := 0
	err = Walk(sampleTree("2019"), cursor, func(leaf domain.Leaf) error {
		visited++
		if leaf.Path() == "A/A2/A2x" {
			return stop
		}
		return nil
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, visited)
}
