package retriever

import (
	"fmt"
	"strings"

	"tabula/internal/dataset"
	"tabula/internal/utils"
)

const defaultSampleLimit = 100

// ColumnLoader turns a parsed table into cell-level documents, one per
// distinct non-blank value. Cell granularity keeps vector search sharp; the
// compressor folds matches back into per-column documents afterwards.
type ColumnLoader struct {
	sampleLimit int
	logger      *utils.Logger
}

// LoaderOption customises a ColumnLoader.
type LoaderOption func(*ColumnLoader)

// WithSampleLimit caps how many distinct values are indexed per column.
func WithSampleLimit(limit int) LoaderOption {
	return func(l *ColumnLoader) {
		if limit > 0 {
			l.sampleLimit = limit
		}
	}
}

// NewColumnLoader creates a loader with default sampling.
func NewColumnLoader(opts ...LoaderOption) *ColumnLoader {
	loader := &ColumnLoader{
		sampleLimit: defaultSampleLimit,
		logger:      utils.NewComponentLogger("column-loader"),
	}
	for _, opt := range opts {
		opt(loader)
	}
	return loader
}

// Load builds documents for every column of table. An empty fileName falls
// back to the table's own name. Blank cells are skipped and NUnique always
// reflects the full distinct count, even when sampling truncated Values.
func (l *ColumnLoader) Load(fileName string, table *dataset.Table) []Document {
	if fileName == "" {
		fileName = table.Name
	}
	var docs []Document
	for i, column := range table.Columns {
		distinct := distinctValues(table.ColumnValues(i))
		kept := distinct
		if len(kept) > l.sampleLimit {
			kept = kept[:l.sampleLimit]
		}
		dtype := dataset.InferDType(table.ColumnValues(i))
		for _, value := range kept {
			docs = append(docs, Document{
				ID:      documentID(fileName, column, value),
				Content: fmt.Sprintf("%s: %s", column, value),
				Meta: ColumnMeta{
					FileName: fileName,
					Column:   column,
					DType:    dtype,
					NUnique:  len(distinct),
					Values:   []string{value},
				},
			})
		}
	}
	l.logger.Debug("Loaded %d documents from %s (%d columns)", len(docs), fileName, len(table.Columns))
	return docs
}

func distinctValues(values []string) []string {
	seen := make(map[string]bool, len(values))
	var distinct []string
	for _, value := range values {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if !seen[value] {
			seen[value] = true
			distinct = append(distinct, value)
		}
	}
	return distinct
}
