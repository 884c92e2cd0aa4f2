package retriever

import (
	"fmt"
	"strings"

	"tabula/internal/shared/token"
)

// ColumnCompressor merges retrieved cell documents into one document per
// (file, column) pair. Merge order follows retrieval rank, so the best-hit
// column surfaces first and its Values list keeps the rank order of the
// cells that matched.
type ColumnCompressor struct {
	maxTokens int
}

// NewColumnCompressor creates a compressor. maxTokens <= 0 leaves the output
// unbounded; otherwise columns are dropped, worst ranked first, once their
// combined content exceeds the budget.
func NewColumnCompressor(maxTokens int) *ColumnCompressor {
	return &ColumnCompressor{maxTokens: maxTokens}
}

// Compress folds docs into column documents. Input order is retrieval rank.
func (c *ColumnCompressor) Compress(docs []Document) []Document {
	if len(docs) == 0 {
		return nil
	}

	type key struct {
		file   string
		column string
	}
	order := make([]key, 0, len(docs))
	merged := make(map[key]*Document, len(docs))
	seenValues := make(map[key]map[string]bool, len(docs))

	for _, doc := range docs {
		k := key{file: doc.Meta.FileName, column: doc.Meta.Column}
		target, ok := merged[k]
		if !ok {
			clone := doc
			clone.Meta.Values = nil
			merged[k] = &clone
			seenValues[k] = make(map[string]bool)
			order = append(order, k)
			target = merged[k]
		}
		for _, value := range doc.Meta.Values {
			if !seenValues[k][value] {
				seenValues[k][value] = true
				target.Meta.Values = append(target.Meta.Values, value)
			}
		}
	}

	out := make([]Document, 0, len(order))
	spent := 0
	for _, k := range order {
		doc := merged[k]
		doc.Content = fmt.Sprintf("%s: %s", doc.Meta.Column, strings.Join(doc.Meta.Values, ", "))
		doc.ID = documentID(doc.Meta.FileName, doc.Meta.Column, "")
		if c.maxTokens > 0 {
			cost := tokenutil.Count(doc.Content)
			if len(out) > 0 && spent+cost > c.maxTokens {
				break
			}
			spent += cost
		}
		out = append(out, *doc)
	}
	return out
}
