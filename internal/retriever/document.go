package retriever

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strconv"
)

// ColumnMeta describes where a document's content came from. Cell documents
// carry a single entry in Values; compressed column documents carry the
// merged sample list.
type ColumnMeta struct {
	// FileName is the name of the table the column belongs to.
	FileName string
	// Column is the column name.
	Column string
	// DType is the inferred dtype of the column.
	DType string
	// NUnique counts distinct non-blank cells in the whole column, which can
	// exceed len(Values).
	NUnique int
	// Values holds sampled distinct cell values in first-seen order.
	Values []string
}

// Document is one retrievable unit of column knowledge.
type Document struct {
	ID      string
	Content string
	Meta    ColumnMeta
}

// documentID derives a stable id so reindexing the same cell overwrites
// rather than duplicates.
func documentID(fileName, column, value string) string {
	sum := sha1.Sum([]byte(fileName + "\x00" + column + "\x00" + value))
	return hex.EncodeToString(sum[:])
}

// asMap flattens metadata for the vector store, which only holds strings.
func (m ColumnMeta) asMap() map[string]string {
	values, _ := json.Marshal(m.Values)
	return map[string]string{
		"file_name": m.FileName,
		"column":    m.Column,
		"dtype":     m.DType,
		"n_unique":  strconv.Itoa(m.NUnique),
		"values":    string(values),
	}
}

func metaFromMap(raw map[string]string) ColumnMeta {
	meta := ColumnMeta{
		FileName: raw["file_name"],
		Column:   raw["column"],
		DType:    raw["dtype"],
	}
	if n, err := strconv.Atoi(raw["n_unique"]); err == nil {
		meta.NUnique = n
	}
	if encoded := raw["values"]; encoded != "" {
		var values []string
		if err := json.Unmarshal([]byte(encoded), &values); err == nil {
			meta.Values = values
		}
	}
	return meta
}
