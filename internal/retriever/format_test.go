package retriever

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatColumnsEmpty(t *testing.T) {
	if got := FormatColumns(nil, 40, 5); got != "" {
		t.Errorf("FormatColumns(nil) = %q, want empty", got)
	}
}

func TestFormatColumnsGroupsByFile(t *testing.T) {
	docs := []Document{
		{Meta: ColumnMeta{FileName: "sales.csv", Column: "region", DType: "object", NUnique: 3, Values: []string{"north", "south", "east"}}},
		{Meta: ColumnMeta{FileName: "sales.csv", Column: "amount", DType: "int64", NUnique: 8, Values: []string{"10", "20", "30", "40", "50", "60"}}},
		{Meta: ColumnMeta{FileName: "users.csv", Column: "name", DType: "object", NUnique: 2, Values: []string{"alice", "bob"}}},
	}

	got := FormatColumns(docs, 40, 5)
	want := "\nHere are some extra column information that might help you understand the dataset:\n" +
		"- sales.csv:\n" +
		`  - {"column": region, "dtype": "object", "values": ["north", "south", "east"]}` + "\n" +
		`  - {"column": amount, "dtype": "int64", "values": ["10", "20", "30", "40", "50", ...]}` + "\n" +
		"- users.csv:\n" +
		`  - {"column": name, "dtype": "object", "values": ["alice", "bob"]}` + "\n"

	assert.Equal(t, want, got)
}

func TestFormatColumnsInterleavedFilesKeepFirstSeenOrder(t *testing.T) {
	docs := []Document{
		{Meta: ColumnMeta{FileName: "b.csv", Column: "x", DType: "int64", NUnique: 1, Values: []string{"1"}}},
		{Meta: ColumnMeta{FileName: "a.csv", Column: "y", DType: "int64", NUnique: 1, Values: []string{"2"}}},
		{Meta: ColumnMeta{FileName: "b.csv", Column: "z", DType: "int64", NUnique: 1, Values: []string{"3"}}},
	}

	got := FormatColumns(docs, 40, 5)
	bAt := strings.Index(got, "- b.csv:")
	aAt := strings.Index(got, "- a.csv:")
	assert.True(t, bAt >= 0 && aAt >= 0 && bAt < aAt, "b.csv seen first must render first:\n%s", got)
	assert.True(t, strings.Index(got, `"column": x`) < strings.Index(got, `"column": z`))
}

func TestFormatValues(t *testing.T) {
	tests := []struct {
		name       string
		values     []string
		cellLength int
		nToKeep    int
		nUnique    int
		want       string
	}{
		{"plain", []string{"a", "b"}, 40, 5, 2, `["a", "b"]`},
		{"ellipsis when more unique than shown", []string{"a", "b"}, 40, 5, 3, `["a", "b", ...]`},
		{"slices before ellipsis check", []string{"a", "b", "c"}, 40, 2, 3, `["a", "b", ...]`},
		{"zero keep", []string{"a"}, 40, 0, 3, `[, ...]`},
		{"empty values no unique", nil, 40, 5, 0, `[]`},
		{"cell truncation", []string{strings.Repeat("x", 45)}, 40, 5, 1, `["` + strings.Repeat("x", 40) + `..."]`},
		{"multibyte truncation counts runes", []string{"北京烤鸭很好吃"}, 5, 5, 1, `["北京烤鸭很..."]`},
		{"quotes escaped", []string{`say "hi"`}, 40, 5, 1, `["say \"hi\""]`},
		{"html left alone", []string{"a<b&c>d"}, 40, 5, 1, `["a<b&c>d"]`},
		{"negative keep disables slicing", []string{"a", "b", "c"}, 40, -1, 3, `["a", "b", "c"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatValues(tt.values, tt.cellLength, tt.nToKeep, tt.nUnique)
			assert.Equal(t, tt.want, got)
		})
	}
}
