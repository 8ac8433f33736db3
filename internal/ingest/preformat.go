package ingest

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mrvillage/gwas-summary-stats/internal/harmonize"
	"github.com/mrvillage/gwas-summary-stats/internal/table"
)

// WorkingColumns is the canonical layout produced by Preformat, before
// liftover attaches the cross-build coordinates. rsid is dropped here;
// it is re-derived from the reference catalog during the join.
var WorkingColumns = []string{
	"chr", "pos", "ref", "alt", "EAF", "effect_size", "standard_error",
	"pvalue", "pvalue_het", "N_total", "N_case", "N_ctrl",
}

// Allele placeholders used by some sources for indels; these records
// cannot be harmonized against a SNP catalog.
var indelPlaceholders = map[string]bool{"I": true, "D": true, "IND": true, "DEL": true}

var badEffectValues = map[string]bool{
	"Nan": true, "NaN": true, "NA": true,
	"Inf": true, "-Inf": true, "inf": true, "-inf": true,
}

// Preformat reads the trait's raw file and normalizes it: canonical
// column names, cleaned chromosomes, upper-case alleles, betas instead
// of odds ratios, and tabulated sample sizes. The result is laid out as
// WorkingColumns with chr/pos suffixed by the source genome build.
func Preformat(leg *Legend, rawInputDir string, logger *zap.Logger) (*table.Table, error) {
	const stage = "preformat"

	info, err := os.Stat(rawInputDir)
	if err != nil {
		return nil, fmt.Errorf("%s: raw input directory %s: %w", stage, rawInputDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: raw input directory %s is not a directory", stage, rawInputDir)
	}
	filePath, err := leg.Get("file_path")
	if err != nil {
		return nil, err
	}
	filePath = strings.TrimPrefix(filePath, "/")
	rawFile := filepath.Join(rawInputDir, filePath)
	if info, err := os.Stat(rawFile); err != nil {
		return nil, fmt.Errorf("%s: raw input file %s: %w", stage, rawFile, err)
	} else if info.IsDir() {
		return nil, fmt.Errorf("%s: raw input file %s is not a file", stage, rawFile)
	}

	delimSpec, err := leg.Get("column_delim")
	if err != nil {
		return nil, err
	}
	delim, err := table.DelimRune(delimSpec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stage, err)
	}
	logger.Info("reading raw input file", zap.String("path", rawFile))
	tab, err := table.ReadFile(rawFile, delim, stage)
	if err != nil {
		return nil, err
	}
	if tab.NumColumns() <= 4 {
		return nil, fmt.Errorf("%s: raw input file has fewer than 5 columns, likely the column delimiter has been misspecified", stage)
	}

	// Rename source columns to their canonical names per the legend.
	for _, col := range renameColumns {
		src, err := leg.Get(col)
		if err != nil {
			return nil, err
		}
		if src == table.NA {
			continue
		}
		if err := tab.RenameColumn(stage, src, col); err != nil {
			return nil, err
		}
	}

	if err := tab.MapColumn(stage, "chr", cleanChromosome); err != nil {
		return nil, err
	}
	for _, col := range []string{"ref", "alt"} {
		if err := tab.MapColumn(stage, col, strings.ToUpper); err != nil {
			return nil, err
		}
	}

	refIdx, err := tab.ColumnIndex(stage, "ref")
	if err != nil {
		return nil, err
	}
	altIdx, err := tab.ColumnIndex(stage, "alt")
	if err != nil {
		return nil, err
	}
	effIdx, err := tab.ColumnIndex(stage, "effect_size")
	if err != nil {
		return nil, err
	}
	before := tab.NumRows()
	tab.Retain(func(r []string) bool {
		return !indelPlaceholders[r[refIdx]] && !indelPlaceholders[r[altIdx]] &&
			!badEffectValues[r[effIdx]]
	})
	logger.Debug("dropped ambiguous and non-finite records",
		zap.Int("before", before), zap.Int("after", tab.NumRows()))

	if err := convertOddsRatios(leg, tab, effIdx, logger); err != nil {
		return nil, err
	}
	if err := tabulateSampleSizes(leg, tab); err != nil {
		return nil, err
	}

	tab = tab.Reorder(WorkingColumns)

	hgVersion, err := leg.Get("hg_version")
	if err != nil {
		return nil, err
	}
	if err := tab.RenameColumn(stage, "chr", "chr_"+hgVersion); err != nil {
		return nil, err
	}
	if err := tab.RenameColumn(stage, "pos", "pos_"+hgVersion); err != nil {
		return nil, err
	}
	if err := tab.CheckShape(stage); err != nil {
		return nil, err
	}
	logger.Info("preformat complete",
		zap.String("hg_version", hgVersion), zap.Int("rows", tab.NumRows()))
	return tab, nil
}

// cleanChromosome strips the "chr" prefix and maps the numeric aliases
// 23/24/25 to X/Y/M.
func cleanChromosome(chr string) string {
	chr = strings.TrimPrefix(chr, "chr")
	switch chr {
	case "23":
		return "X"
	case "24":
		return "Y"
	case "25":
		return "M"
	}
	return chr
}

// convertOddsRatios replaces odds/hazard ratios with log-scale betas
// when the legend flags the effect column as OR, dropping records whose
// logarithm is not finite. Either way it cross-checks the flag against
// the observed signs and warns on a mismatch.
func convertOddsRatios(leg *Legend, tab *table.Table, effIdx int, logger *zap.Logger) error {
	effectIsOR, err := leg.Get("effect_is_OR")
	if err != nil {
		return err
	}
	sizes := make([]float64, tab.NumRows())
	for i, r := range tab.Rows() {
		v, err := strconv.ParseFloat(r[effIdx], 64)
		if err != nil {
			return fmt.Errorf("preformat: row %d: %w", i,
				&harmonize.NumericParseError{Field: "effect size", Value: r[effIdx]})
		}
		sizes[i] = v
	}

	allPositive := true
	anyNegative := false
	for _, v := range sizes {
		if v <= 0 {
			allPositive = false
		}
		if v < 0 {
			anyNegative = true
		}
	}
	if effectIsOR == "N" && allPositive && len(sizes) > 0 {
		logger.Warn("all effect sizes are positive yet effect_is_OR has been set to N; " +
			"please double check that effect estimates from the raw data file are indeed " +
			"regression coefficients and not odds ratios")
	}
	if effectIsOR == "Y" && anyNegative {
		logger.Warn("some effect sizes are negative yet effect_is_OR has been set to Y; " +
			"please double check that effect estimates from the raw data file are indeed " +
			"odds or hazard ratios and not regression coefficients")
	}
	if effectIsOR != "Y" {
		return nil
	}
	i := -1
	tab.Retain(func(r []string) bool {
		i++
		l := math.Log(sizes[i])
		if math.IsNaN(l) || math.IsInf(l, 0) {
			return false
		}
		r[effIdx] = strconv.FormatFloat(l, 'g', -1, 64)
		return true
	})
	return nil
}

// tabulateSampleSizes resolves the N_total/N_case/N_ctrl columns from
// whichever the legend provides: a source column name, a study-wide
// constant, or nothing. When two of the three are known for a record the
// third is derived.
func tabulateSampleSizes(leg *Legend, tab *table.Table) error {
	const stage = "preformat"
	for _, v := range []string{"total", "case", "ctrl"} {
		colSpec, err := leg.Get("N_" + v + "_column")
		if err != nil {
			return err
		}
		value, err := leg.Get("N_" + v)
		if err != nil {
			return err
		}
		target := "N_" + v
		if colSpec != table.NA {
			// The source column was already renamed to N_<v>_column.
			if err := tab.RenameColumn(stage, "N_"+v+"_column", target); err != nil {
				return err
			}
		} else if value != table.NA {
			if !tab.HasColumn(target) {
				tab.AppendColumns(target)
			}
			val := value
			if err := tab.MapColumn(stage, target, func(string) string { return val }); err != nil {
				return err
			}
		}
	}
	for _, v := range []string{"total", "case", "ctrl"} {
		if !tab.HasColumn("N_" + v) {
			tab.AppendColumns("N_" + v)
		}
	}

	totalIdx := tab.MustColumnIndex("N_total")
	caseIdx := tab.MustColumnIndex("N_case")
	ctrlIdx := tab.MustColumnIndex("N_ctrl")
	parse := func(cell string) (float64, error) {
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return 0, &harmonize.NumericParseError{Field: "sample size", Value: cell}
		}
		return v, nil
	}
	for i, r := range tab.Rows() {
		var err error
		switch {
		case !table.IsNA(r[caseIdx]) && !table.IsNA(r[ctrlIdx]):
			err = deriveSampleSize(r, totalIdx, caseIdx, ctrlIdx, parse, func(a, b float64) float64 { return a + b })
		case !table.IsNA(r[ctrlIdx]) && !table.IsNA(r[totalIdx]) && table.IsNA(r[caseIdx]):
			err = deriveSampleSize(r, caseIdx, totalIdx, ctrlIdx, parse, func(a, b float64) float64 { return a - b })
		case !table.IsNA(r[caseIdx]) && !table.IsNA(r[totalIdx]) && table.IsNA(r[ctrlIdx]):
			err = deriveSampleSize(r, ctrlIdx, totalIdx, caseIdx, parse, func(a, b float64) float64 { return a - b })
		}
		if err != nil {
			return fmt.Errorf("%s: row %d: %w", stage, i, err)
		}
	}
	return nil
}

func deriveSampleSize(r []string, dst, a, b int, parse func(string) (float64, error), op func(a, b float64) float64) error {
	av, err := parse(r[a])
	if err != nil {
		return err
	}
	bv, err := parse(r[b])
	if err != nil {
		return err
	}
	r[dst] = strconv.FormatFloat(op(av, bv), 'g', -1, 64)
	return nil
}
