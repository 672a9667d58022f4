// Package table holds the column-major table model shared by CSV, API and
// dataset-backed catalog items. Every column is a slice of strings whose first
// element is the header; cells are stringified uniformly whatever their
// source type, and missing values are "".
package table

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// ErrShape is returned for column-major data whose columns differ in length
// or lack a header.
var ErrShape = errors.New("table: columns must be non-empty and of equal length")

// Table is column-major string data.
type Table struct {
	columns [][]string
}

// FromColumnMajor validates and copies column-major data.
func FromColumnMajor(cols [][]string) (*Table, error) {
	t := &Table{columns: make([][]string, len(cols))}
	for i, c := range cols {
		if len(c) == 0 || len(c) != len(cols[0]) {
			return nil, fmt.Errorf("%w: column %d has %d cells", ErrShape, i, len(c))
		}
		t.columns[i] = slices.Clone(c)
	}
	return t, nil
}

// FromRows transposes row-major data whose first row is the header. Short
// rows are padded with "" and cells beyond the header are dropped.
func FromRows(rows [][]string) (*Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no header row", ErrShape)
	}
	header := rows[0]
	t := &Table{columns: make([][]string, len(header))}
	for i, name := range header {
		col := make([]string, 0, len(rows))
		col = append(col, strings.TrimSpace(name))
		for _, row := range rows[1:] {
			if i < len(row) {
				col = append(col, row[i])
			} else {
				col = append(col, "")
			}
		}
		t.columns[i] = col
	}
	return t, nil
}

// ParseCSV reads CSV text with a header row. Rows of varying width are
// accepted; blank lines are skipped.
func ParseCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("table: read csv: %w", err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return FromRows(rows)
}

// ColumnMajor returns a copy of the data.
func (t *Table) ColumnMajor() [][]string {
	out := make([][]string, len(t.columns))
	for i, c := range t.columns {
		out[i] = slices.Clone(c)
	}
	return out
}

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int { return len(t.columns) }

// NumRows returns the number of data rows, excluding the header.
func (t *Table) NumRows() int {
	if len(t.columns) == 0 {
		return 0
	}
	return len(t.columns[0]) - 1
}

// Names returns the column headers.
func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c[0]
	}
	return names
}

// Index returns the position of the named column or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.columns {
		if c[0] == name {
			return i
		}
	}
	return -1
}

// Values returns the data cells of column i.
func (t *Table) Values(i int) []string {
	if i < 0 || i >= len(t.columns) {
		return nil
	}
	return t.columns[i][1:]
}

// Cell returns the value at data row r of column i, or "" out of range.
func (t *Table) Cell(i, r int) string {
	v := t.Values(i)
	if r < 0 || r >= len(v) {
		return ""
	}
	return v[r]
}

// Row returns data row r keyed by column name.
func (t *Table) Row(r int) map[string]string {
	row := make(map[string]string, len(t.columns))
	for i, c := range t.columns {
		row[c[0]] = t.Cell(i, r)
	}
	return row
}

// Append adds the data rows of other below the existing rows. Columns are
// matched by name; columns other lacks are filled with "" and columns only
// other has are ignored, so the column count and order never change. A table
// with no columns yet takes other's columns as they are.
func (t *Table) Append(other *Table) {
	if len(t.columns) == 0 {
		t.columns = other.ColumnMajor()
		return
	}
	n := other.NumRows()
	for i, c := range t.columns {
		j := other.Index(c[0])
		for r := range n {
			if j < 0 {
				c = append(c, "")
				continue
			}
			c = append(c, other.Cell(j, r))
		}
		t.columns[i] = c
	}
}

// RemoveDuplicateRows drops rows identical to an earlier row and reports how
// many were removed.
func (t *Table) RemoveDuplicateRows() int {
	seen := make(map[string]bool)
	var keep []int
	for r := range t.NumRows() {
		var b strings.Builder
		for i := range t.columns {
			b.WriteString(t.Cell(i, r))
			b.WriteByte(0)
		}
		key := b.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		keep = append(keep, r)
	}
	removed := t.NumRows() - len(keep)
	if removed == 0 {
		return 0
	}
	for i, c := range t.columns {
		col := []string{c[0]}
		for _, r := range keep {
			col = append(col, c[r+1])
		}
		t.columns[i] = col
	}
	return removed
}

// FromRecords builds a table with the given columns from keyed rows. Cells
// are stringified with Stringify; absent keys become "".
func FromRecords(columns []string, rows []map[string]any) *Table {
	t := &Table{columns: make([][]string, len(columns))}
	for i, name := range columns {
		col := make([]string, 0, len(rows)+1)
		col = append(col, name)
		for _, row := range rows {
			col = append(col, Stringify(row[name]))
		}
		t.columns[i] = col
	}
	return t
}

// Stringify renders a decoded JSON value as a table cell. Numbers use the
// shortest representation that round-trips; nil is "". Objects and arrays
// are written as JSON.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case map[string]any, []any:
		if b, err := json.Marshal(x); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}
