package retriever

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cellDoc(file, column, value string) Document {
	return Document{
		ID:      documentID(file, column, value),
		Content: column + ": " + value,
		Meta: ColumnMeta{
			FileName: file,
			Column:   column,
			DType:    "object",
			NUnique:  10,
			Values:   []string{value},
		},
	}
}

func TestCompressMergesCellsByColumn(t *testing.T) {
	docs := []Document{
		cellDoc("sales.csv", "region", "north"),
		cellDoc("sales.csv", "amount", "10"),
		cellDoc("sales.csv", "region", "south"),
		cellDoc("sales.csv", "region", "north"),
	}

	out := NewColumnCompressor(0).Compress(docs)
	require.Len(t, out, 2)

	assert.Equal(t, "region", out[0].Meta.Column)
	assert.Equal(t, []string{"north", "south"}, out[0].Meta.Values, "rank order kept, duplicate dropped")
	assert.Equal(t, "region: north, south", out[0].Content)
	assert.Equal(t, 10, out[0].Meta.NUnique)

	assert.Equal(t, "amount", out[1].Meta.Column)
	assert.Equal(t, []string{"10"}, out[1].Meta.Values)
}

func TestCompressSeparatesSameColumnAcrossFiles(t *testing.T) {
	docs := []Document{
		cellDoc("a.csv", "id", "1"),
		cellDoc("b.csv", "id", "1"),
	}
	out := NewColumnCompressor(0).Compress(docs)
	require.Len(t, out, 2)
	assert.Equal(t, "a.csv", out[0].Meta.FileName)
	assert.Equal(t, "b.csv", out[1].Meta.FileName)
}

func TestCompressEmpty(t *testing.T) {
	assert.Nil(t, NewColumnCompressor(0).Compress(nil))
}

func TestCompressTokenBudgetDropsWorstRanked(t *testing.T) {
	docs := []Document{
		cellDoc("sales.csv", "region", "north"),
		cellDoc("sales.csv", "amount", "10"),
		cellDoc("sales.csv", "city", "berlin"),
	}

	out := NewColumnCompressor(4).Compress(docs)
	require.NotEmpty(t, out, "the best-ranked column always survives")
	assert.Less(t, len(out), 3)
	assert.Equal(t, "region", out[0].Meta.Column)
}
