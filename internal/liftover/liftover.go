// Package liftover converts coordinates between genome builds by
// driving the external UCSC liftOver tool over an interval-list (BED)
// representation of the table, then attaches the hg19 and hg38
// coordinates back onto the rows.
package liftover

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mrvillage/gwas-summary-stats/internal/table"
)

// ToolError reports a liftOver subprocess that could not be started or
// exited non-zero. Fatal for the whole run.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("external tool %s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Config locates the liftOver binary and its chain files.
type Config struct {
	Binary   string
	ChainDir string
}

// Coords holds lifted coordinates per input row ID. A row absent from a
// map could not be lifted to that build.
type Coords struct {
	HG19 map[int]ChrPos
	HG38 map[int]ChrPos
}

// ChrPos is a chromosome name (without "chr" prefix) and 1-based
// position.
type ChrPos struct {
	Chr string
	Pos string
}

// builds supported as liftover sources, checked in this order.
var sourceBuilds = []string{"hg17", "hg18", "hg19", "hg38"}

// Run lifts the table's source-build coordinates to both hg19 and hg38.
// The source build is whichever pos_hg* column the table carries.
// Sources older than hg19 are first lifted to hg19, then hg19 and hg38
// are derived from one another. Rows are keyed by index through the BED
// name field, so an interval the tool drops never shifts its neighbours.
func Run(cfg Config, tab *table.Table, logger *zap.Logger) (*Coords, error) {
	const stage = "liftover"

	var build string
	for _, b := range sourceBuilds {
		if tab.HasColumn("pos_" + b) {
			build = b
			break
		}
	}
	if build == "" {
		return nil, &table.SchemaError{Stage: stage, Column: "pos_hg17/hg18/hg19/hg38"}
	}
	chrIdx, err := tab.ColumnIndex(stage, "chr_"+build)
	if err != nil {
		return nil, err
	}
	posIdx, err := tab.ColumnIndex(stage, "pos_"+build)
	if err != nil {
		return nil, err
	}
	logger.Info("lifting coordinates", zap.String("source_build", build), zap.Int("rows", tab.NumRows()))

	workDir, err := os.MkdirTemp("", "liftover-*")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stage, err)
	}
	defer os.RemoveAll(workDir)

	inputBed := filepath.Join(workDir, "input.bed")
	if err := writeBED(inputBed, tab.Rows(), chrIdx, posIdx); err != nil {
		return nil, err
	}

	// Pre-hg19 sources go through an extra hop so both targets can be
	// derived from the hg19 intervals.
	hg19Bed := inputBed
	if build == "hg17" || build == "hg18" {
		hg19Bed = filepath.Join(workDir, "hg19.bed")
		chain := filepath.Join(cfg.ChainDir, build+"ToHg19.over.chain.gz")
		if err := runLiftOver(cfg.Binary, inputBed, chain, hg19Bed, filepath.Join(workDir, "unlifted1.bed")); err != nil {
			return nil, err
		}
	}

	coords := &Coords{HG19: map[int]ChrPos{}, HG38: map[int]ChrPos{}}
	switch build {
	case "hg38":
		// Source already is hg38; lift down to hg19.
		outBed := filepath.Join(workDir, "final.bed")
		chain := filepath.Join(cfg.ChainDir, "hg38ToHg19.over.chain.gz")
		if err := runLiftOver(cfg.Binary, inputBed, chain, outBed, filepath.Join(workDir, "unlifted.bed")); err != nil {
			return nil, err
		}
		if coords.HG38, err = readBED(inputBed); err != nil {
			return nil, err
		}
		if coords.HG19, err = readBED(outBed); err != nil {
			return nil, err
		}
	default:
		outBed := filepath.Join(workDir, "final.bed")
		chain := filepath.Join(cfg.ChainDir, "hg19ToHg38.over.chain.gz")
		if err := runLiftOver(cfg.Binary, hg19Bed, chain, outBed, filepath.Join(workDir, "unlifted.bed")); err != nil {
			return nil, err
		}
		if coords.HG19, err = readBED(hg19Bed); err != nil {
			return nil, err
		}
		if coords.HG38, err = readBED(outBed); err != nil {
			return nil, err
		}
	}
	logger.Info("liftover complete",
		zap.Int("hg19", len(coords.HG19)), zap.Int("hg38", len(coords.HG38)))
	return coords, nil
}

// Attach appends chr_hg19/pos_hg19/chr_hg38/pos_hg38 columns, filling
// "NA" for rows the tool could not lift. When the table already carries
// the source build's own pair the values are rewritten from the BED
// round-trip, which is an identity for that build.
func Attach(tab *table.Table, coords *Coords) error {
	const stage = "liftover"
	for _, col := range []string{"chr_hg19", "pos_hg19", "chr_hg38", "pos_hg38"} {
		if !tab.HasColumn(col) {
			tab.AppendColumns(col)
		}
	}
	fill := func(chrCol, posCol string, m map[int]ChrPos) error {
		chrIdx, err := tab.ColumnIndex(stage, chrCol)
		if err != nil {
			return err
		}
		posIdx, err := tab.ColumnIndex(stage, posCol)
		if err != nil {
			return err
		}
		for i, r := range tab.Rows() {
			if cp, ok := m[i]; ok {
				r[chrIdx] = cp.Chr
				r[posIdx] = cp.Pos
			} else {
				r[chrIdx] = table.NA
				r[posIdx] = table.NA
			}
		}
		return nil
	}
	if err := fill("chr_hg19", "pos_hg19", coords.HG19); err != nil {
		return err
	}
	if err := fill("chr_hg38", "pos_hg38", coords.HG38); err != nil {
		return err
	}
	return tab.CheckShape(stage)
}

// writeBED emits one closed single-base interval per row, named by the
// row index so lifted intervals can be matched back.
func writeBED(path string, rows [][]string, chrIdx, posIdx int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("liftover: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for i, r := range rows {
		pos, err := strconv.ParseInt(r[posIdx], 10, 64)
		if err != nil {
			return fmt.Errorf("liftover: row %d: position %q is not an integer", i, r[posIdx])
		}
		fmt.Fprintf(w, "chr%s\t%d\t%d\t%d\n", r[chrIdx], pos-1, pos, i)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("liftover: %w", err)
	}
	return nil
}

// readBED parses a lifted BED file back into row-ID keyed coordinates,
// stripping the "chr" prefix the chain files require.
func readBED(path string) (map[int]ChrPos, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("liftover: %w", err)
	}
	defer f.Close()

	out := map[int]ChrPos{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			return nil, fmt.Errorf("liftover: malformed BED line %q in %s", line, path)
		}
		id, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("liftover: BED name %q in %s is not a row ID", fields[3], path)
		}
		out[id] = ChrPos{
			Chr: strings.TrimPrefix(fields[0], "chr"),
			Pos: fields[2],
		}
	}
	return out, sc.Err()
}

func runLiftOver(binary, input, chain, output, unlifted string) error {
	cmd := exec.Command(binary, input, chain, output, unlifted)
	if out, err := cmd.CombinedOutput(); err != nil {
		return &ToolError{Tool: binary, Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))}
	}
	return nil
}
