package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordIDUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    RecordID
		wantErr bool
	}{
		{name: "string", input: `{"id_ficha":"A-100"}`, want: "A-100"},
		{name: "number", input: `{"id_ficha":1234567}`, want: "1234567"},
		{name: "null", input: `{"id_ficha":null}`, want: ""},
		{name: "object", input: `{"id_ficha":{"x":1}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stub RecordStub
			err := json.Unmarshal([]byte(tt.input), &stub)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, stub.ID)
		})
	}
}

func TestRecordIDPath(t *testing.T) {
	assert.Equal(t, "/?P=imsscomprofich&f=42", RecordID("42").Path())
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "$1,234.50", want: "1234.5"},
		{input: " 0.00 ", want: "0"},
		{input: "1,200", want: "1200"},
		{input: "", wantErr: true},
		{input: "n/a", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestIsZeroTotal(t *testing.T) {
	assert.True(t, IsZeroTotal("0.00"))
	assert.True(t, IsZeroTotal("$0"))
	assert.False(t, IsZeroTotal("$12.00"))
	assert.False(t, IsZeroTotal("desconocido"))
}

func TestSumTotals(t *testing.T) {
	sum := SumTotals([]*Category{{Total: "$1,000.50"}, {Total: "0.00"}, {Total: "?"}, {Total: "99.50"}})
	assert.True(t, decimal.NewFromInt(1100).Equal(sum))
}

func TestTreePath(t *testing.T) {
	assert.Equal(t, TreePath("3/45"), NewTreePath("3", "45", ""))
	assert.Equal(t, TreePath("3/45/7"), NewTreePath("3", "45", "7"))
	assert.Equal(t, []string{"3", "45", "7"}, TreePath("3/45/7").Segments())
	assert.Nil(t, TreePath("").Segments())
}

func TestLeafTagsStub(t *testing.T) {
	leaf := Leaf{
		PeriodID:        "2019",
		CategoryID:      "3",
		CategoryName:    "Bienes",
		SubcategoryID:   "45",
		SubcategoryName: "Material",
		SubItemID:       "7",
		SubItemName:     "Gasas",
	}
	assert.Equal(t, "Gasas", leaf.Name())

	stub := RecordStub{ID: "1"}
	leaf.Tag(&stub)
	assert.Equal(t, leaf.Path(), stub.Path())
	assert.Equal(t, "2019", stub.Period)
	assert.Equal(t, "Gasas", stub.SubItemName)
}

func TestSubcategoryValidate(t *testing.T) {
	assert.NoError(t, (&Subcategory{ID: "1", URL: "/x"}).Validate())
	assert.NoError(t, (&Subcategory{ID: "1", SubItems: []*SubItem{{ID: "2"}}}).Validate())
	assert.Error(t, (&Subcategory{ID: "1", URL: "/x", SubItems: []*SubItem{{ID: "2"}}}).Validate())
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("timeout")

	leafErr := &LeafFetchError{Leaf: Leaf{CategoryID: "1", SubcategoryID: "2"}, Stage: LeafStageListing, Page: 3, Err: cause}
	assert.ErrorIs(t, leafErr, cause)
	assert.Contains(t, leafErr.Error(), "listing page 3")

	var target *LeafFetchError
	assert.True(t, errors.As(error(leafErr), &target))

	assert.ErrorIs(t, &RecordFetchError{Err: cause}, cause)
	assert.ErrorIs(t, &DiscoveryError{Period: "2019", Err: cause}, cause)
	assert.ErrorIs(t, &CorruptRecordError{Period: "2019", Line: 2, Err: cause}, cause)
}

func TestRunResultAggregates(t *testing.T) {
	result := &RunResult{Periods: []*PeriodResult{
		{NewRecords: 2, FailedLeaves: []*LeafFetchError{{}}},
		{NewRecords: 3, FailedRecords: []*RecordFetchError{{}, {}}},
	}}

	assert.Equal(t, 5, result.NewRecords())
	assert.Len(t, result.FailedLeaves(), 1)
	assert.Len(t, result.FailedRecords(), 2)
}
