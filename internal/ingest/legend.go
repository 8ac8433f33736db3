// Package ingest normalizes a raw summary-statistics file into the
// canonical working layout, driven by one row of the GWAS formatting
// legend.
package ingest

import (
	"fmt"

	"github.com/mrvillage/gwas-summary-stats/internal/table"
)

// Legend fields that must be present for a trait.
var requiredLegendColumns = []string{
	"rsid", "chr", "pos", "ref", "alt",
	"effect_size", "effect_is_OR", "standard_error", "EAF",
	"pvalue", "pvalue_het",
	"N_total_column", "N_case_column", "N_ctrl_column",
	"column_delim", "hg_version", "file_path",
	"N_total", "N_case", "N_ctrl",
}

// Legend fields that must not be NA: without a coordinate/allele mapping
// nothing downstream can run.
var legendCoordColumns = []string{"chr", "pos", "ref", "alt"}

// Legend fields whose values name source columns to be renamed to the
// canonical name.
var renameColumns = []string{
	"rsid", "chr", "pos", "ref", "alt",
	"effect_size", "standard_error", "EAF",
	"pvalue", "pvalue_het",
	"N_total_column", "N_case_column", "N_ctrl_column",
}

// Legend is the formatting-legend row for one trait.
type Legend struct {
	tab *table.Table
	row []string
}

// SelectTrait finds the single legend row for a trait name. Zero or
// multiple matches are errors: the legend must describe each trait
// exactly once.
func SelectTrait(sheet *table.Table, traitName string) (*Legend, error) {
	const stage = "legend"
	rows, err := sheet.Select(stage, "trait_name", func(v string) bool { return v == traitName })
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows found in the GWAS formatting legend for trait_name=%s", traitName)
	}
	if len(rows) > 1 {
		return nil, fmt.Errorf("multiple rows found in the GWAS formatting legend for trait_name=%s", traitName)
	}
	leg := &Legend{tab: sheet, row: rows[0]}

	for _, col := range requiredLegendColumns {
		v, err := leg.Get(col)
		if err != nil {
			return nil, err
		}
		if v == "" {
			return nil, fmt.Errorf("column %s is missing in the GWAS formatting legend for trait_name=%s", col, traitName)
		}
	}
	for _, col := range legendCoordColumns {
		v, err := leg.Get(col)
		if err != nil {
			return nil, err
		}
		if table.IsNA(v) {
			return nil, fmt.Errorf("column %s is NA in the GWAS formatting legend for trait_name=%s", col, traitName)
		}
	}
	return leg, nil
}

// Get returns the legend value for a named field.
func (l *Legend) Get(name string) (string, error) {
	idx, err := l.tab.ColumnIndex("legend", name)
	if err != nil {
		return "", err
	}
	return l.row[idx], nil
}
