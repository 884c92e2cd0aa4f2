package dataset

import (
	"strconv"
	"strings"
)

// Table is the in-memory form of one parsed tabular file. Cells stay as raw
// strings; typing happens on demand via DTypes.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// Shape returns (rows, columns).
func (t *Table) Shape() (int, int) {
	return len(t.Rows), len(t.Columns)
}

// Head returns a copy holding at most n leading rows. Columns are shared.
func (t *Table) Head(n int) *Table {
	if n < 0 {
		n = 0
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	rows := make([][]string, n)
	copy(rows, t.Rows[:n])
	return &Table{Name: t.Name, Columns: t.Columns, Rows: rows}
}

// ColumnValues returns the cells of column i, top to bottom. Rows shorter
// than the header contribute empty cells.
func (t *Table) ColumnValues(i int) []string {
	if i < 0 || i >= len(t.Columns) {
		return nil
	}
	values := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		if i < len(row) {
			values = append(values, row[i])
		} else {
			values = append(values, "")
		}
	}
	return values
}

// DTypes infers a dtype name per column.
func (t *Table) DTypes() []string {
	dtypes := make([]string, len(t.Columns))
	for i := range t.Columns {
		dtypes[i] = InferDType(t.ColumnValues(i))
	}
	return dtypes
}

// Markdown renders the table as a pipe-delimited markdown table.
func (t *Table) Markdown() string {
	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("|")
		for _, cell := range cells {
			b.WriteString(" ")
			b.WriteString(strings.ReplaceAll(cell, "|", "\\|"))
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}
	writeRow(t.Columns)
	separators := make([]string, len(t.Columns))
	for i := range separators {
		separators[i] = "---"
	}
	writeRow(separators)
	for _, row := range t.Rows {
		padded := row
		if len(row) < len(t.Columns) {
			padded = make([]string, len(t.Columns))
			copy(padded, row)
		}
		writeRow(padded[:len(t.Columns)])
	}
	return b.String()
}

// InferDType classifies a column of raw cells the way a dataframe would:
// integers, then floats, then booleans, falling back to object. Empty cells
// count as missing and promote integer columns to float64.
func InferDType(values []string) string {
	if len(values) == 0 {
		return "object"
	}

	allInt := true
	allFloat := true
	allBool := true
	missing := 0

	for _, value := range values {
		cell := strings.TrimSpace(value)
		if cell == "" {
			missing++
			continue
		}
		if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
			allInt = false
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			allFloat = false
		}
		if cell != "True" && cell != "False" {
			allBool = false
		}
	}

	if missing == len(values) {
		return "float64"
	}
	switch {
	case allInt && missing == 0:
		return "int64"
	case allFloat:
		return "float64"
	case allBool && missing == 0:
		return "bool"
	default:
		return "object"
	}
}
