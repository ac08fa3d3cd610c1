package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Period is one harvestable slice of the portal (a year)
type Period struct {
	ID         string          `json:"id"`
	Total      decimal.Decimal `json:"total"`
	Categories []*Category     `json:"categories"`

	ContractCount int `json:"contract_count,omitempty"`
}

// Category is the first level of the navigation tree
type Category struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Total         string         `json:"total"`
	Subcategories []*Subcategory `json:"subcategories,omitempty"`

	ContractCount int `json:"contract_count,omitempty"`
}

// Subcategory either owns a listing URL (leaf) or a list of sub-items, never both
type Subcategory struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Total       string     `json:"total"`
	Description string     `json:"description,omitempty"`
	URL         string     `json:"url,omitempty"`
	SubItems    []*SubItem `json:"rubros,omitempty"`

	ContractCount int       `json:"contract_count,omitempty"`
	Contracts     []*Record `json:"contracts,omitempty"`
}

// SubItem (rubro) is the third level of the tree, always a leaf
type SubItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Total       string `json:"total"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`

	ContractCount int       `json:"contract_count,omitempty"`
	Contracts     []*Record `json:"contracts,omitempty"`
}

// IsLeaf reports whether the subcategory has its own listing
func (s *Subcategory) IsLeaf() bool {
	return s.URL != ""
}

// Validate checks the listing/children exclusivity of a subcategory
func (s *Subcategory) Validate() error {
	if s.URL != "" && len(s.SubItems) > 0 {
		return fmt.Errorf("subcategory %s has both a listing url and %d sub-items", s.ID, len(s.SubItems))
	}
	return nil
}

// TreePath identifies a leaf inside a period: category/subcategory[/subitem]
type TreePath string

// NewTreePath builds a path from its segments, dropping an empty sub-item
func NewTreePath(categoryID, subcategoryID, subItemID string) TreePath {
	path := categoryID + "/" + subcategoryID
	if subItemID != "" {
		path += "/" + subItemID
	}
	return TreePath(path)
}

func (p TreePath) String() string {
	return string(p)
}

// Segments splits the path back into its ids
func (p TreePath) Segments() []string {
	if p == "" {
		return nil
	}
	return strings.Split(string(p), "/")
}

// Leaf is a visited tree leaf with its full path context
type Leaf struct {
	PeriodID        string `json:"period"`
	CategoryID      string `json:"categoria"`
	CategoryName    string `json:"categoria_nombre"`
	SubcategoryID   string `json:"subcategoria"`
	SubcategoryName string `json:"subcategoria_nombre"`
	SubItemID       string `json:"rubro,omitempty"`
	SubItemName     string `json:"rubro_nombre,omitempty"`
	URL             string `json:"url"`

	// Node the leaf was built from, used to attach harvested contracts
	Subcategory *Subcategory `json:"-"`
	SubItem     *SubItem     `json:"-"`
}

// Path returns the leaf's tree path
func (l Leaf) Path() TreePath {
	return NewTreePath(l.CategoryID, l.SubcategoryID, l.SubItemID)
}

// Name returns the display name of the leaf node
func (l Leaf) Name() string {
	if l.SubItemID != "" {
		return l.SubItemName
	}
	return l.SubcategoryName
}

// Tag copies the leaf's path context onto a stub
func (l Leaf) Tag(stub *RecordStub) {
	stub.Period = l.PeriodID
	stub.CategoryID = l.CategoryID
	stub.CategoryName = l.CategoryName
	stub.SubcategoryID = l.SubcategoryID
	stub.SubcategoryName = l.SubcategoryName
	stub.SubItemID = l.SubItemID
	stub.SubItemName = l.SubItemName
}

// ResultsOverview is the count summary shown on top of a leaf listing
type ResultsOverview struct {
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// ListingRow is one raw row of a listing page
type ListingRow struct {
	Template string `json:"template"`
}
