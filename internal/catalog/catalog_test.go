package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrvillage/gwas-summary-stats/internal/table"
)

func catalogTable(t *testing.T, rows ...[]string) *table.Table {
	t.Helper()
	tab := table.New("chr", "pos_hg19", "ref", "alt", "pos_hg38", "rsid", "gnomAD_AF_EUR")
	for _, r := range rows {
		require.NoError(t, tab.AppendRow(r))
	}
	return tab
}

func TestCatalogLookup(t *testing.T) {
	cat, err := New(catalogTable(t,
		[]string{"1", "100", "A", "G", "200", "rs1", "0.1"},
		[]string{"2", "300", "C", "T", "400", "rs2", "0.2"},
	))
	require.NoError(t, err)
	assert.Equal(t, 2, cat.NumEntries())

	row, ok := cat.Lookup(Key{Chr: "1", Pos: "100", Ref: "A", Alt: "G", PosNew: "200"})
	require.True(t, ok)
	assert.Equal(t, "rs1", row[5])

	// Orientation is part of the key.
	_, ok = cat.Lookup(Key{Chr: "1", Pos: "100", Ref: "G", Alt: "A", PosNew: "200"})
	assert.False(t, ok)

	_, ok = cat.Lookup(Key{Chr: "1", Pos: "100", Ref: "A", Alt: "G", PosNew: "999"})
	assert.False(t, ok)
}

func TestCatalogDuplicateKeyLastWins(t *testing.T) {
	cat, err := New(catalogTable(t,
		[]string{"1", "100", "A", "G", "200", "rs_old", "0.1"},
		[]string{"1", "100", "A", "G", "200", "rs_new", "0.2"},
	))
	require.NoError(t, err)
	assert.Equal(t, 1, cat.NumEntries())

	row, ok := cat.Lookup(Key{Chr: "1", Pos: "100", Ref: "A", Alt: "G", PosNew: "200"})
	require.True(t, ok)
	assert.Equal(t, "rs_new", row[5])
}

func TestCatalogExtraColumns(t *testing.T) {
	cat, err := New(catalogTable(t, []string{"1", "100", "A", "G", "200", "rs1", "0.1"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"rsid", "gnomAD_AF_EUR"}, cat.ExtraColumns())
	row, ok := cat.Lookup(Key{Chr: "1", Pos: "100", Ref: "A", Alt: "G", PosNew: "200"})
	require.True(t, ok)
	assert.Equal(t, []string{"rs1", "0.1"}, cat.ExtraValues(row))
}

func TestLoadDelimitedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.tsv")
	content := "chr\tpos_hg19\tref\talt\tpos_hg38\trsid\n1\t100\tA\tG\t200\trs1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cat, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cat.NumEntries())
	assert.Equal(t, []string{"rsid"}, cat.ExtraColumns())
}

func TestConvertAndLoadDuckDB(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping DuckDB conversion in short mode")
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "catalog.tsv")
	content := "chr\tpos_hg19\tref\talt\tpos_hg38\trsid\n" +
		"1\t100\tA\tG\t200\trs1\n" +
		"2\t300\tC\tT\t400\trs2\n"
	require.NoError(t, os.WriteFile(src, []byte(content), 0o644))

	dst := filepath.Join(dir, "catalog.duckdb")
	count, err := Convert(src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	cat, err := Load(dst)
	require.NoError(t, err)
	assert.Equal(t, 2, cat.NumEntries())
	row, ok := cat.Lookup(Key{Chr: "2", Pos: "300", Ref: "C", Alt: "T", PosNew: "400"})
	require.True(t, ok)
	assert.Equal(t, []string{"rs2"}, cat.ExtraValues(row))
}
