// Package table implements the in-memory tabular store shared by every
// pipeline stage: an ordered header plus row-major string cells. Stages
// consume a table and produce a new one; there is never more than one
// writer of a given table.
package table

import (
	"fmt"
	"strings"
)

// NA is the sentinel for an absent or not-applicable value.
const NA = "NA"

// IsNA reports whether a cell holds the absent-value sentinel.
// "NaN" is treated the same way and is never parsed as a number.
func IsNA(s string) bool {
	return s == "NA" || s == "NaN"
}

// SchemaError reports a required column missing from a table.
type SchemaError struct {
	Stage  string
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: required column %q is missing", e.Stage, e.Column)
}

// ShapeError reports a row whose cell count does not match the header.
// It indicates an internal bug, not bad input.
type ShapeError struct {
	Stage string
	Row   int
	Want  int
	Got   int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: row %d has %d cells, header has %d columns", e.Stage, e.Row, e.Got, e.Want)
}

// Table is an ordered sequence of column names plus row-major cells.
// Every row has exactly as many cells as there are columns.
type Table struct {
	cols []string
	rows [][]string
}

// New creates an empty table with the given header.
// Duplicate column names are a programming error and panic.
func New(cols ...string) *Table {
	checkUnique(cols)
	return &Table{cols: append([]string(nil), cols...)}
}

func checkUnique(cols []string) {
	seen := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		if _, dup := seen[c]; dup {
			panic(fmt.Sprintf("table: duplicate column name %q", c))
		}
		seen[c] = struct{}{}
	}
}

// Columns returns the header in order. The returned slice is a copy.
func (t *Table) Columns() []string {
	return append([]string(nil), t.cols...)
}

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int { return len(t.cols) }

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return len(t.rows) }

// Row returns the i-th row. The slice is shared, not copied.
func (t *Table) Row(i int) []string { return t.rows[i] }

// Rows returns the underlying rows. The slice is shared, not copied.
func (t *Table) Rows() [][]string { return t.rows }

// AppendRow adds a row, enforcing the shape invariant.
func (t *Table) AppendRow(cells []string) error {
	if len(cells) != len(t.cols) {
		return &ShapeError{Stage: "append", Row: len(t.rows), Want: len(t.cols), Got: len(cells)}
	}
	t.rows = append(t.rows, cells)
	return nil
}

// ColumnIndex returns the position of a named column. The stage name is
// used in the error so a failure identifies where the schema broke.
func (t *Table) ColumnIndex(stage, name string) (int, error) {
	for i, c := range t.cols {
		if c == name {
			return i, nil
		}
	}
	return -1, &SchemaError{Stage: stage, Column: name}
}

// MustColumnIndex is ColumnIndex for columns the caller has already
// validated. A miss is a programming error and panics.
func (t *Table) MustColumnIndex(name string) int {
	for i, c := range t.cols {
		if c == name {
			return i
		}
	}
	panic(fmt.Sprintf("table: column %q not present", name))
}

// HasColumn reports whether the header contains name.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.cols {
		if c == name {
			return true
		}
	}
	return false
}

// Column returns all cells of a named column in row order.
func (t *Table) Column(stage, name string) ([]string, error) {
	idx, err := t.ColumnIndex(stage, name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[idx]
	}
	return out, nil
}

// Select returns the rows whose cell in the named column satisfies pred.
// The filter is non-destructive; returned rows are shared with the table.
func (t *Table) Select(stage, name string, pred func(string) bool) ([][]string, error) {
	idx, err := t.ColumnIndex(stage, name)
	if err != nil {
		return nil, err
	}
	var out [][]string
	for _, r := range t.rows {
		if pred(r[idx]) {
			out = append(out, r)
		}
	}
	return out, nil
}

// MapColumn rewrites every cell of a named column through fn.
func (t *Table) MapColumn(stage, name string, fn func(string) string) error {
	idx, err := t.ColumnIndex(stage, name)
	if err != nil {
		return err
	}
	for _, r := range t.rows {
		r[idx] = fn(r[idx])
	}
	return nil
}

// Retain keeps only the rows for which pred returns true, preserving order.
func (t *Table) Retain(pred func(row []string) bool) {
	kept := t.rows[:0]
	for _, r := range t.rows {
		if pred(r) {
			kept = append(kept, r)
		}
	}
	t.rows = kept
}

// AppendColumns extends the header, padding every existing row with "NA".
// Duplicating an existing column name is a programming error and panics.
func (t *Table) AppendColumns(names ...string) {
	checkUnique(append(t.Columns(), names...))
	t.cols = append(t.cols, names...)
	for i, r := range t.rows {
		row := make([]string, 0, len(t.cols))
		row = append(row, r...)
		for range names {
			row = append(row, NA)
		}
		t.rows[i] = row
	}
}

// RenameColumn renames every header entry equal to old. Renaming onto an
// existing column name breaks the uniqueness invariant and is rejected.
func (t *Table) RenameColumn(stage, old, new string) error {
	if old == new {
		return nil
	}
	if t.HasColumn(new) && t.HasColumn(old) {
		return &SchemaError{Stage: stage, Column: new + " (rename collision)"}
	}
	for i, c := range t.cols {
		if c == old {
			t.cols[i] = new
		}
	}
	return nil
}

// Reorder produces a new table laid out in the target column order.
// Columns absent from the receiver are filled with "NA" for every row;
// columns not named in target are dropped. Reordering is a plain
// allocate-and-copy into the new layout.
func (t *Table) Reorder(target []string) *Table {
	checkUnique(target)
	src := make([]int, len(target))
	for i, name := range target {
		src[i] = -1
		for j, c := range t.cols {
			if c == name {
				src[i] = j
				break
			}
		}
	}
	out := New(target...)
	out.rows = make([][]string, len(t.rows))
	for ri, r := range t.rows {
		row := make([]string, len(target))
		for i, j := range src {
			if j < 0 {
				row[i] = NA
			} else {
				row[i] = r[j]
			}
		}
		out.rows[ri] = row
	}
	return out
}

// Clone deep-copies the table.
func (t *Table) Clone() *Table {
	out := New(t.cols...)
	out.rows = make([][]string, len(t.rows))
	for i, r := range t.rows {
		out.rows[i] = append([]string(nil), r...)
	}
	return out
}

// CheckShape verifies the row/column invariant over the whole table.
func (t *Table) CheckShape(stage string) error {
	for i, r := range t.rows {
		if len(r) != len(t.cols) {
			return &ShapeError{Stage: stage, Row: i, Want: len(t.cols), Got: len(r)}
		}
	}
	return nil
}

// String summarizes the table for log output.
func (t *Table) String() string {
	return fmt.Sprintf("table[%d cols x %d rows: %s]", len(t.cols), len(t.rows), strings.Join(t.cols, ","))
}
