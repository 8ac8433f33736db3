package harmonize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrvillage/gwas-summary-stats/internal/catalog"
	"github.com/mrvillage/gwas-summary-stats/internal/table"
)

// inputColumns is the working layout the join receives from liftover.
var inputColumns = []string{
	"chr_hg19", "pos_hg19", "ref", "alt", "EAF", "effect_size",
	"standard_error", "pvalue", "pvalue_het", "N_total", "N_case",
	"N_ctrl", "chr_hg38", "pos_hg38",
}

func inputRow(chr, pos, ref, alt, eaf, effect, pos38 string) []string {
	return []string{chr, pos, ref, alt, eaf, effect, "0.1", "1e-8", "NA", "1000", "NA", "NA", chr, pos38}
}

func makeInput(t *testing.T, rows ...[]string) *table.Table {
	t.Helper()
	tab := table.New(inputColumns...)
	for _, r := range rows {
		require.NoError(t, tab.AppendRow(r))
	}
	return tab
}

func makeCatalog(t *testing.T, rows ...[]string) *catalog.Catalog {
	t.Helper()
	tab := table.New("chr", "pos_hg19", "ref", "alt", "pos_hg38", "rsid", "gnomAD_AF_EUR")
	for _, r := range rows {
		require.NoError(t, tab.AppendRow(r))
	}
	cat, err := catalog.New(tab)
	require.NoError(t, err)
	return cat
}

func cell(t *testing.T, tab *table.Table, row int, col string) string {
	t.Helper()
	idx, err := tab.ColumnIndex("test", col)
	require.NoError(t, err)
	return tab.Row(row)[idx]
}

func TestJoinDirectHit(t *testing.T) {
	cat := makeCatalog(t, []string{"1", "100", "A", "G", "200", "rs42", "0.12"})
	input := makeInput(t, inputRow("1", "100", "A", "G", "0.3", "0.5", "200"))

	matched, missing, err := NewJoiner().Join(input, cat)
	require.NoError(t, err)

	require.Equal(t, 1, matched.NumRows())
	assert.Equal(t, 0, missing.NumRows())
	assert.Equal(t, "A", cell(t, matched, 0, "ref"))
	assert.Equal(t, "G", cell(t, matched, 0, "alt"))
	assert.Equal(t, "0.5", cell(t, matched, 0, "effect_size"))
	assert.Equal(t, "0.3", cell(t, matched, 0, "EAF"))
	assert.Equal(t, "1_100_A_G", cell(t, matched, 0, "unique_id"))
	// Catalog annotations propagated.
	assert.Equal(t, "rs42", cell(t, matched, 0, "rsid"))
	assert.Equal(t, "0.12", cell(t, matched, 0, "gnomAD_AF_EUR"))
}

func TestJoinFlippedHitIsNormalized(t *testing.T) {
	// Catalog holds (A,G); the record was reported as (G,A).
	cat := makeCatalog(t, []string{"1", "100", "A", "G", "200", "rs42", "0.12"})
	input := makeInput(t, inputRow("1", "100", "G", "A", "0.3", "0.5", "200"))

	matched, missing, err := NewJoiner().Join(input, cat)
	require.NoError(t, err)

	require.Equal(t, 1, matched.NumRows())
	assert.Equal(t, 0, missing.NumRows())
	assert.Equal(t, "A", cell(t, matched, 0, "ref"))
	assert.Equal(t, "G", cell(t, matched, 0, "alt"))
	assert.Equal(t, "-0.5", cell(t, matched, 0, "effect_size"))
	assert.Equal(t, "0.7", cell(t, matched, 0, "EAF"))
	assert.Equal(t, "1_100_A_G", cell(t, matched, 0, "unique_id"))
	assert.Equal(t, "rs42", cell(t, matched, 0, "rsid"))
}

func TestJoinDirectOrientationWins(t *testing.T) {
	// Catalog carries both orientations of the same coordinate; the
	// direct hit always takes precedence over the flipped candidate.
	cat := makeCatalog(t,
		[]string{"1", "100", "A", "G", "200", "rs1", "NA"},
		[]string{"1", "100", "G", "A", "200", "rs2", "NA"},
	)
	input := makeInput(t, inputRow("1", "100", "A", "G", "0.3", "0.5", "200"))

	matched, missing, err := NewJoiner().Join(input, cat)
	require.NoError(t, err)

	require.Equal(t, 1, matched.NumRows())
	assert.Equal(t, 0, missing.NumRows())
	assert.Equal(t, "A", cell(t, matched, 0, "ref"))
	assert.Equal(t, "0.5", cell(t, matched, 0, "effect_size"))
	assert.Equal(t, "rs1", cell(t, matched, 0, "rsid"))
}

func TestJoinDeduplicatesByUniqueID(t *testing.T) {
	cat := makeCatalog(t, []string{"1", "100", "A", "G", "200", "rs42", "NA"})
	input := makeInput(t,
		inputRow("1", "100", "A", "G", "0.3", "0.5", "200"),
		// Same variant reported again in the opposite orientation:
		// flips to the same unique_id and is dropped.
		inputRow("1", "100", "G", "A", "0.7", "-0.5", "200"),
		// Exact duplicate of the first.
		inputRow("1", "100", "A", "G", "0.3", "0.5", "200"),
	)

	matched, missing, err := NewJoiner().Join(input, cat)
	require.NoError(t, err)

	require.Equal(t, 1, matched.NumRows())
	assert.Equal(t, 0, missing.NumRows())
	// First occurrence wins.
	assert.Equal(t, "0.5", cell(t, matched, 0, "effect_size"))
}

func TestJoinMissingComplement(t *testing.T) {
	cat := makeCatalog(t, []string{"1", "100", "A", "G", "200", "rs42", "NA"})
	input := makeInput(t,
		inputRow("1", "100", "A", "G", "0.3", "0.5", "200"), // matched
		inputRow("2", "300", "C", "T", "0.1", "0.2", "400"), // no hit, coords complete
		inputRow("3", "500", "T", "C", "0.2", "0.1", "NA"),  // no hit, pos_hg38 absent
	)

	matched, missing, err := NewJoiner().Join(input, cat)
	require.NoError(t, err)

	// Every input row lands in exactly one of matched, missing, or the
	// coordinate-incomplete drop.
	require.Equal(t, 1, matched.NumRows())
	require.Equal(t, 1, missing.NumRows())
	assert.Equal(t, "2", cell(t, missing, 0, "chr_hg19"))
	assert.Equal(t, "2_300_C_T", cell(t, missing, 0, "unique_id"))
	// Unmatched rows carry NA annotation placeholders.
	assert.Equal(t, "NA", cell(t, missing, 0, "rsid"))
}

func TestJoinMissingExcludesSwappedMatches(t *testing.T) {
	// A row that matched only after the allele swap must not reappear in
	// the missing set under its original key.
	cat := makeCatalog(t, []string{"1", "100", "A", "G", "200", "rs42", "NA"})
	input := makeInput(t, inputRow("1", "100", "G", "A", "0.3", "0.5", "200"))

	matched, missing, err := NewJoiner().Join(input, cat)
	require.NoError(t, err)
	assert.Equal(t, 1, matched.NumRows())
	assert.Equal(t, 0, missing.NumRows())
}

func TestJoinNaNCoordinateDropped(t *testing.T) {
	cat := makeCatalog(t, []string{"1", "100", "A", "G", "200", "rs42", "NA"})
	input := makeInput(t, inputRow("9", "900", "A", "G", "0.3", "0.5", "NaN"))

	matched, missing, err := NewJoiner().Join(input, cat)
	require.NoError(t, err)
	assert.Equal(t, 0, matched.NumRows())
	assert.Equal(t, 0, missing.NumRows())
}

func TestJoinOutputLayout(t *testing.T) {
	cat := makeCatalog(t, []string{"1", "100", "A", "G", "200", "rs42", "0.12"})
	input := makeInput(t, inputRow("1", "100", "A", "G", "0.3", "0.5", "200"))

	matched, missing, err := NewJoiner().Join(input, cat)
	require.NoError(t, err)

	want := append(append([]string(nil), FinalColumns...), "gnomAD_AF_EUR")
	assert.Equal(t, want, matched.Columns())
	assert.Equal(t, want, missing.Columns())
}

func TestJoinReconciliationIdempotent(t *testing.T) {
	cat := makeCatalog(t,
		[]string{"1", "100", "A", "G", "200", "rs1", "NA"},
		[]string{"2", "300", "C", "T", "400", "rs2", "NA"},
	)
	input := makeInput(t,
		inputRow("1", "100", "A", "G", "0.3", "0.5", "200"),
		inputRow("2", "300", "T", "C", "0.1", "0.2", "400"),
	)

	first, _, err := NewJoiner().Join(input, cat)
	require.NoError(t, err)
	second, _, err := NewJoiner().Join(input, cat)
	require.NoError(t, err)
	assert.Equal(t, first.Rows(), second.Rows())
}

func TestJoinMissingCatalogColumn(t *testing.T) {
	tab := table.New("chr", "pos_hg19", "ref", "alt") // no pos_hg38
	_, err := catalog.New(tab)
	var se *table.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "pos_hg38", se.Column)
}

func TestUniqueID(t *testing.T) {
	assert.Equal(t, "1_100_A_G", UniqueID("1", "100", "A", "G"))
}
