package harmonize

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mrvillage/gwas-summary-stats/internal/catalog"
	"github.com/mrvillage/gwas-summary-stats/internal/table"
)

// Canonical column names of the harmonized working layout.
const (
	ColChrOld   = "chr_hg19"
	ColPosOld   = "pos_hg19"
	ColRef      = "ref"
	ColAlt      = "alt"
	ColEffect   = "effect_size"
	ColEAF      = "EAF"
	ColChrNew   = "chr_hg38"
	ColPosNew   = "pos_hg38"
	ColUniqueID = "unique_id"
)

// FinalColumns is the fixed prefix of the output layout. Catalog
// annotation columns not named here follow it in catalog order.
var FinalColumns = []string{
	"rsid", "unique_id", "chr_hg19", "pos_hg19", "ref", "alt",
	"effect_size", "standard_error", "EAF", "pvalue", "pvalue_het",
	"N_total", "N_case", "N_ctrl", "chr_hg38", "pos_hg38",
}

// variantKey is the 4-tuple used for deduplication and the missing-set
// complement.
type variantKey struct {
	chr, pos, ref, alt string
}

// UniqueID derives the per-row deduplication key.
func UniqueID(chr, pos, ref, alt string) string {
	return chr + "_" + pos + "_" + ref + "_" + alt
}

// Joiner matches input records against a reference catalog under both
// allele orientations.
type Joiner struct {
	logger *zap.Logger
}

// NewJoiner creates a join engine with no logging.
func NewJoiner() *Joiner {
	return &Joiner{logger: zap.NewNop()}
}

// SetLogger sets the logger for progress messages.
func (j *Joiner) SetLogger(l *zap.Logger) {
	j.logger = l
}

// Join probes the catalog with every input row under its literal key and
// its allele-swapped key, reconciles the two candidate sets, and computes
// the complement of unmatched rows that still carry both cross-build
// coordinates.
//
// Matched rows carry the catalog's annotation columns and a unique_id;
// the direct orientation wins whenever a row matches both ways, and the
// first occurrence of a unique_id wins overall (direct hits precede
// flipped hits, each in input order). Rows with an NA coordinate on
// either build are dropped entirely: no lookup is possible without a
// coordinate.
//
// Both outputs are laid out as FinalColumns followed by the catalog's
// extra annotation columns.
func (j *Joiner) Join(input *table.Table, cat *catalog.Catalog) (matched, missing *table.Table, err error) {
	const stage = "join"
	var idx struct {
		chr, pos, ref, alt, posNew, effect, eaf int
	}
	for _, c := range []struct {
		name string
		dst  *int
	}{
		{ColChrOld, &idx.chr}, {ColPosOld, &idx.pos}, {ColRef, &idx.ref},
		{ColAlt, &idx.alt}, {ColPosNew, &idx.posNew}, {ColEffect, &idx.effect},
		{ColEAF, &idx.eaf},
	} {
		if *c.dst, err = input.ColumnIndex(stage, c.name); err != nil {
			return nil, nil, err
		}
	}

	extras := cat.ExtraColumns()
	for _, name := range extras {
		if input.HasColumn(name) || name == ColUniqueID {
			return nil, nil, fmt.Errorf("%s: catalog annotation column %q collides with an input column", stage, name)
		}
	}
	extCols := append(input.Columns(), extras...)
	extCols = append(extCols, ColUniqueID)
	uidPos := len(extCols) - 1

	probe := func(swapAlleles bool) [][]string {
		var hits [][]string
		for _, r := range input.Rows() {
			key := catalog.Key{
				Chr:    r[idx.chr],
				Pos:    r[idx.pos],
				Ref:    r[idx.ref],
				Alt:    r[idx.alt],
				PosNew: r[idx.posNew],
			}
			if swapAlleles {
				key.Ref, key.Alt = key.Alt, key.Ref
			}
			catRow, ok := cat.Lookup(key)
			if !ok {
				continue
			}
			row := make([]string, 0, len(extCols))
			row = append(row, r...)
			row = append(row, cat.ExtraValues(catRow)...)
			row = append(row, UniqueID(r[idx.chr], r[idx.pos], r[idx.ref], r[idx.alt]))
			hits = append(hits, row)
		}
		return hits
	}

	// The two probe passes are independent: the index is read-only.
	var direct, flipped [][]string
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); direct = probe(false) }()
	go func() { defer wg.Done(); flipped = probe(true) }()
	wg.Wait()

	directIDs := make(map[string]struct{}, len(direct))
	for _, r := range direct {
		directIDs[r[uidPos]] = struct{}{}
	}

	// A flipped hit was joined under the wrong orientation: restore the
	// catalog's ref/alt order and correct the sign and frequency computed
	// under the swap, then re-derive its unique_id.
	merged := direct
	for _, r := range flipped {
		if _, dup := directIDs[r[uidPos]]; dup {
			continue
		}
		if err := FlipAlleles(r, idx.ref, idx.alt, idx.effect, idx.eaf); err != nil {
			return nil, nil, fmt.Errorf("%s: flipped hit %s: %w", stage, r[uidPos], err)
		}
		r[uidPos] = UniqueID(r[idx.chr], r[idx.pos], r[idx.ref], r[idx.alt])
		merged = append(merged, r)
	}

	seen := make(map[string]struct{}, len(merged))
	deduped := merged[:0]
	for _, r := range merged {
		if _, dup := seen[r[uidPos]]; dup {
			continue
		}
		seen[r[uidPos]] = struct{}{}
		deduped = append(deduped, r)
	}

	// The unique_id is not stable across the allele swap, so membership
	// is recorded under both orientations of every surviving row.
	matchedKeys := make(map[variantKey]struct{}, 2*len(deduped))
	for _, r := range deduped {
		matchedKeys[variantKey{r[idx.chr], r[idx.pos], r[idx.ref], r[idx.alt]}] = struct{}{}
		matchedKeys[variantKey{r[idx.chr], r[idx.pos], r[idx.alt], r[idx.ref]}] = struct{}{}
	}

	matchedExt := table.New(extCols...)
	for _, r := range deduped {
		if err := matchedExt.AppendRow(r); err != nil {
			return nil, nil, err
		}
	}

	missingExt := table.New(extCols...)
	for _, r := range input.Rows() {
		if _, ok := matchedKeys[variantKey{r[idx.chr], r[idx.pos], r[idx.ref], r[idx.alt]}]; ok {
			continue
		}
		if table.IsNA(r[idx.pos]) || table.IsNA(r[idx.posNew]) {
			continue
		}
		row := make([]string, 0, len(extCols))
		row = append(row, r...)
		for range extras {
			row = append(row, table.NA)
		}
		row = append(row, UniqueID(r[idx.chr], r[idx.pos], r[idx.ref], r[idx.alt]))
		if err := missingExt.AppendRow(row); err != nil {
			return nil, nil, err
		}
	}

	order := outputOrder(extras)
	matched = matchedExt.Reorder(order)
	missing = missingExt.Reorder(order)
	if err := matched.CheckShape(stage); err != nil {
		return nil, nil, err
	}
	if err := missing.CheckShape(stage); err != nil {
		return nil, nil, err
	}

	j.logger.Info("catalog join complete",
		zap.Int("input_rows", input.NumRows()),
		zap.Int("direct_hits", len(direct)),
		zap.Int("flipped_hits", len(flipped)),
		zap.Int("matched", matched.NumRows()),
		zap.Int("missing", missing.NumRows()))
	return matched, missing, nil
}

// outputOrder is FinalColumns followed by the catalog annotation columns
// that are not already part of the fixed prefix.
func outputOrder(extras []string) []string {
	order := append([]string(nil), FinalColumns...)
	fixed := make(map[string]struct{}, len(order))
	for _, c := range order {
		fixed[c] = struct{}{}
	}
	for _, c := range extras {
		if _, ok := fixed[c]; !ok {
			order = append(order, c)
		}
	}
	return order
}
