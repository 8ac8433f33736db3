package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnIndex(t *testing.T) {
	tab := New("chr", "pos", "ref", "alt")

	idx, err := tab.ColumnIndex("test", "ref")
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	_, err = tab.ColumnIndex("join", "EAF")
	require.Error(t, err)
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "join", se.Stage)
	assert.Equal(t, "EAF", se.Column)
}

func TestDuplicateColumnsPanic(t *testing.T) {
	assert.Panics(t, func() { New("chr", "pos", "chr") })

	tab := New("chr", "pos")
	assert.Panics(t, func() { tab.AppendColumns("pos") })
}

func TestAppendRowShape(t *testing.T) {
	tab := New("a", "b")
	require.NoError(t, tab.AppendRow([]string{"1", "2"}))

	err := tab.AppendRow([]string{"1"})
	var she *ShapeError
	require.ErrorAs(t, err, &she)
	assert.Equal(t, 2, she.Want)
	assert.Equal(t, 1, she.Got)
}

func TestSelect(t *testing.T) {
	tab := New("trait_name", "file_path")
	require.NoError(t, tab.AppendRow([]string{"height", "height.txt"}))
	require.NoError(t, tab.AppendRow([]string{"bmi", "bmi.txt"}))
	require.NoError(t, tab.AppendRow([]string{"height", "height2.txt"}))

	rows, err := tab.Select("test", "trait_name", func(v string) bool { return v == "height" })
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "height.txt", rows[0][1])
	assert.Equal(t, "height2.txt", rows[1][1])

	// Restartable: a second pass sees the same rows.
	again, err := tab.Select("test", "trait_name", func(v string) bool { return v == "height" })
	require.NoError(t, err)
	assert.Equal(t, rows, again)
	assert.Equal(t, 3, tab.NumRows())
}

func TestAppendColumnsPadsNA(t *testing.T) {
	tab := New("chr")
	require.NoError(t, tab.AppendRow([]string{"1"}))
	tab.AppendColumns("N_total", "N_case")

	require.NoError(t, tab.CheckShape("test"))
	assert.Equal(t, []string{"1", "NA", "NA"}, tab.Row(0))
}

func TestReorderFillsAbsentColumnsWithNA(t *testing.T) {
	tab := New("pos", "chr", "extra")
	require.NoError(t, tab.AppendRow([]string{"100", "1", "x"}))

	out := tab.Reorder([]string{"rsid", "chr", "pos"})
	assert.Equal(t, []string{"rsid", "chr", "pos"}, out.Columns())
	require.Equal(t, 1, out.NumRows())
	assert.Equal(t, []string{"NA", "1", "100"}, out.Row(0))

	// Source table is untouched.
	assert.Equal(t, []string{"100", "1", "x"}, tab.Row(0))
}

func TestRenameColumn(t *testing.T) {
	tab := New("BETA", "SE")
	require.NoError(t, tab.RenameColumn("test", "BETA", "effect_size"))
	assert.True(t, tab.HasColumn("effect_size"))
	assert.False(t, tab.HasColumn("BETA"))

	// Renaming onto an existing name breaks uniqueness.
	err := tab.RenameColumn("test", "SE", "effect_size")
	require.Error(t, err)
}

func TestRetainPreservesOrder(t *testing.T) {
	tab := New("v")
	for _, v := range []string{"a", "b", "c", "d"} {
		require.NoError(t, tab.AppendRow([]string{v}))
	}
	tab.Retain(func(r []string) bool { return r[0] != "b" })

	require.Equal(t, 3, tab.NumRows())
	assert.Equal(t, "a", tab.Row(0)[0])
	assert.Equal(t, "c", tab.Row(1)[0])
	assert.Equal(t, "d", tab.Row(2)[0])
}

func TestMapColumn(t *testing.T) {
	tab := New("chr", "pos")
	require.NoError(t, tab.AppendRow([]string{"chr1", "100"}))
	require.NoError(t, tab.MapColumn("test", "chr", func(v string) string { return v + "!" }))
	assert.Equal(t, "chr1!", tab.Row(0)[0])
	assert.Equal(t, "100", tab.Row(0)[1])
}

func TestIsNA(t *testing.T) {
	assert.True(t, IsNA("NA"))
	assert.True(t, IsNA("NaN"))
	assert.False(t, IsNA("na"))
	assert.False(t, IsNA(""))
	assert.False(t, IsNA("0.5"))
}
