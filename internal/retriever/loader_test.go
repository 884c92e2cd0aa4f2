package retriever

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabula/internal/dataset"
)

func salesTable() *dataset.Table {
	return &dataset.Table{
		Columns: []string{"region", "amount"},
		Rows: [][]string{
			{"north", "10"},
			{"south", "20"},
			{"north", "30"},
			{"", "20"},
			{"east", ""},
		},
	}
}

func TestColumnLoaderLoad(t *testing.T) {
	docs := NewColumnLoader().Load("sales.csv", salesTable())

	// region: north, south, east; amount: 10, 20, 30.
	require.Len(t, docs, 6)

	first := docs[0]
	assert.Equal(t, "sales.csv", first.Meta.FileName)
	assert.Equal(t, "region", first.Meta.Column)
	assert.Equal(t, "object", first.Meta.DType)
	assert.Equal(t, 3, first.Meta.NUnique)
	assert.Equal(t, []string{"north"}, first.Meta.Values)
	assert.Equal(t, "region: north", first.Content)
	assert.NotEmpty(t, first.ID)

	var amountDTypes []string
	for _, doc := range docs[3:] {
		amountDTypes = append(amountDTypes, doc.Meta.DType)
	}
	// The blank amount cell promotes the column to float64.
	assert.Equal(t, []string{"float64", "float64", "float64"}, amountDTypes)
}

func TestColumnLoaderFallsBackToTableName(t *testing.T) {
	table := salesTable()
	table.Name = "sales.csv"

	docs := NewColumnLoader().Load("", table)
	require.NotEmpty(t, docs)
	assert.Equal(t, "sales.csv", docs[0].Meta.FileName)
}

func TestColumnLoaderSampleLimitKeepsTrueUniqueCount(t *testing.T) {
	docs := NewColumnLoader(WithSampleLimit(2)).Load("sales.csv", salesTable())

	var regionDocs []Document
	for _, doc := range docs {
		if doc.Meta.Column == "region" {
			regionDocs = append(regionDocs, doc)
		}
	}
	require.Len(t, regionDocs, 2)
	assert.Equal(t, 3, regionDocs[0].Meta.NUnique, "NUnique counts beyond the sample")
}

func TestColumnLoaderStableIDs(t *testing.T) {
	a := NewColumnLoader().Load("sales.csv", salesTable())
	b := NewColumnLoader().Load("sales.csv", salesTable())
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
	}
	assert.NotEqual(t, a[0].ID, a[1].ID)
}
