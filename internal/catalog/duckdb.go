package catalog

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/mrvillage/gwas-summary-stats/internal/table"
)

// Convert reads a delimited catalog file and writes it to a DuckDB
// database so repeat runs skip the text parse. The converted file is
// interchangeable with the original: Load accepts either.
func Convert(inputPath, outputPath string) (int, error) {
	tab, err := table.ReadFile(inputPath, '\t', "catalog convert")
	if err != nil {
		return 0, err
	}

	db, err := sql.Open("duckdb", outputPath)
	if err != nil {
		return 0, fmt.Errorf("open duckdb: %w", err)
	}
	defer db.Close()

	cols := tab.Columns()
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = quoteIdent(c) + " VARCHAR"
	}
	if _, err := db.Exec("CREATE TABLE variants (" + strings.Join(defs, ", ") + ")"); err != nil {
		return 0, fmt.Errorf("create schema: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := db.Prepare("INSERT INTO variants VALUES (" + placeholders + ")")
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range tab.Rows() {
		args := make([]any, len(r))
		for j, v := range r {
			args[j] = v
		}
		if _, err := stmt.Exec(args...); err != nil {
			return 0, fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM variants").Scan(&count); err != nil {
		return 0, fmt.Errorf("verify count: %w", err)
	}
	if count != tab.NumRows() {
		return 0, fmt.Errorf("convert wrote %d rows, expected %d", count, tab.NumRows())
	}
	return count, nil
}

// readDuckDB loads a converted catalog back into a table, preserving the
// original column order.
func readDuckDB(path string) (*table.Table, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer db.Close()

	rows, err := db.Query("SELECT * FROM variants")
	if err != nil {
		return nil, fmt.Errorf("query variants: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	tab := table.New(cols...)
	for rows.Next() {
		cells := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range cells {
			dest[i] = &cells[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make([]string, len(cols))
		for i, c := range cells {
			if c.Valid {
				row[i] = c.String
			} else {
				row[i] = table.NA
			}
		}
		if err := tab.AppendRow(row); err != nil {
			return nil, err
		}
	}
	return tab, rows.Err()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
