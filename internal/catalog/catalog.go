// Package catalog loads the reference variant catalog and indexes it by
// the five-field coordinate/allele key used for harmonization probes.
package catalog

import (
	"path/filepath"

	"github.com/mrvillage/gwas-summary-stats/internal/table"
)

// Catalog key column names. Extra annotation columns beyond these are
// propagated verbatim onto matching input rows.
const (
	ColChr    = "chr"
	ColPos    = "pos_hg19"
	ColRef    = "ref"
	ColAlt    = "alt"
	ColPosNew = "pos_hg38"
)

// Key identifies one catalog entry: chromosome and position on the old
// build, the two alleles, and the position on the new build.
type Key struct {
	Chr    string
	Pos    string
	Ref    string
	Alt    string
	PosNew string
}

// Catalog is an immutable reference catalog with a hash index over Key.
// The index is built once and read-only afterwards, so concurrent probes
// need no synchronization.
type Catalog struct {
	tab       *table.Table
	index     map[Key]int
	keyIdx    [5]int
	extraIdx  []int
	extraCols []string
}

// New indexes a catalog table. The catalog is assumed authoritative and
// pre-deduplicated; if it still carries duplicate keys the later entry
// wins.
func New(tab *table.Table) (*Catalog, error) {
	c := &Catalog{tab: tab}
	for i, name := range []string{ColChr, ColPos, ColRef, ColAlt, ColPosNew} {
		idx, err := tab.ColumnIndex("catalog", name)
		if err != nil {
			return nil, err
		}
		c.keyIdx[i] = idx
	}
	isKey := make(map[int]bool, 5)
	for _, idx := range c.keyIdx {
		isKey[idx] = true
	}
	for i, name := range tab.Columns() {
		if !isKey[i] {
			c.extraIdx = append(c.extraIdx, i)
			c.extraCols = append(c.extraCols, name)
		}
	}
	c.index = make(map[Key]int, tab.NumRows())
	for i, r := range tab.Rows() {
		c.index[c.keyOf(r)] = i
	}
	return c, nil
}

func (c *Catalog) keyOf(row []string) Key {
	return Key{
		Chr:    row[c.keyIdx[0]],
		Pos:    row[c.keyIdx[1]],
		Ref:    row[c.keyIdx[2]],
		Alt:    row[c.keyIdx[3]],
		PosNew: row[c.keyIdx[4]],
	}
}

// NumEntries returns the number of distinct keys in the index.
func (c *Catalog) NumEntries() int { return len(c.index) }

// Lookup probes the index and returns the full catalog row on a hit.
func (c *Catalog) Lookup(k Key) ([]string, bool) {
	i, ok := c.index[k]
	if !ok {
		return nil, false
	}
	return c.tab.Row(i), true
}

// ExtraColumns returns the annotation column names beyond the key.
func (c *Catalog) ExtraColumns() []string {
	return append([]string(nil), c.extraCols...)
}

// ExtraValues extracts the annotation cells of a catalog row in
// ExtraColumns order.
func (c *Catalog) ExtraValues(row []string) []string {
	out := make([]string, len(c.extraIdx))
	for i, idx := range c.extraIdx {
		out[i] = row[idx]
	}
	return out
}

// Load reads a catalog from path. Files ending in .duckdb or .db are
// opened as a converted DuckDB cache (see Convert); anything else is
// parsed as tab-delimited text, gzip-compressed or plain.
func Load(path string) (*Catalog, error) {
	var (
		tab *table.Table
		err error
	)
	switch filepath.Ext(path) {
	case ".duckdb", ".db":
		tab, err = readDuckDB(path)
	default:
		tab, err = table.ReadFile(path, '\t', "catalog")
	}
	if err != nil {
		return nil, err
	}
	return New(tab)
}
