package retriever

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const columnContextPreamble = "\nHere are some extra column information that might help you understand the dataset:\n"

// FormatColumns renders column documents as a compact, LLM-readable block.
// Columns are grouped under their table in first-seen order. Each value list
// is bounded by maxCells entries of at most cellLengthThreshold characters;
// a trailing ellipsis marks columns whose distinct count exceeds what is
// shown. Empty input renders as an empty string.
func FormatColumns(docs []Document, cellLengthThreshold, maxCells int) string {
	if len(docs) == 0 {
		return ""
	}

	var order []string
	grouped := make(map[string][]Document)
	for _, doc := range docs {
		name := doc.Meta.FileName
		if _, ok := grouped[name]; !ok {
			order = append(order, name)
		}
		grouped[name] = append(grouped[name], doc)
	}

	tables := make([]string, 0, len(order))
	for _, name := range order {
		lines := make([]string, 0, len(grouped[name]))
		for _, doc := range grouped[name] {
			lines = append(lines, fmt.Sprintf(`  - {"column": %s, "dtype": "%s", "values": %s}`,
				doc.Meta.Column,
				doc.Meta.DType,
				formatValues(doc.Meta.Values, cellLengthThreshold, maxCells, doc.Meta.NUnique)))
		}
		tables = append(tables, "- "+name+":\n"+strings.Join(lines, "\n"))
	}

	return columnContextPreamble + strings.Join(tables, "\n") + "\n"
}

// formatValues renders values as a JSON-style list. nToKeep bounds how many
// values appear (negative disables the bound), cellLength bounds each cell's
// character count (non-positive disables it), and an nUnique larger than the
// kept list appends ", ..." inside the brackets.
func formatValues(values []string, cellLength, nToKeep, nUnique int) string {
	if nToKeep >= 0 && len(values) > nToKeep {
		values = values[:nToKeep]
	}

	rendered := make([]string, len(values))
	for i, value := range values {
		if cellLength > 0 {
			if runes := []rune(value); len(runes) > cellLength {
				value = string(runes[:cellLength]) + "..."
			}
		}
		rendered[i] = value
	}

	repr := jsonList(rendered)
	if nUnique > len(rendered) {
		repr = repr[:len(repr)-1] + ", ...]"
	}
	return repr
}

// jsonList encodes strings as a JSON array with ", " separators and no HTML
// escaping, so multibyte cell values stay readable.
func jsonList(values []string) string {
	var b strings.Builder
	b.WriteString("[")
	for i, value := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(jsonString(value))
	}
	b.WriteString("]")
	return b.String()
}

func jsonString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Sprintf("%q", s)
	}
	return strings.TrimRight(buf.String(), "\n")
}
