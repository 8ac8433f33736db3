// Package seqlookup resolves unmatched records by querying an external
// sequence-lookup tool for the reference base at each record's new-build
// coordinate, dispatching fixed-size batches across a bounded worker
// pool while preserving input order.
package seqlookup

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/mrvillage/gwas-summary-stats/internal/harmonize"
	"github.com/mrvillage/gwas-summary-stats/internal/table"
)

// DefaultBatchSize is the number of queries passed to one tool
// invocation.
const DefaultBatchSize = 5000

// AmbiguousBase is the sentinel stored when the tool returns more than
// one character for a query.
const AmbiguousBase = "N"

// ExternalToolError reports a lookup subprocess that could not be
// started or exited non-zero. It is fatal for the whole run: the engine
// produces no output rather than a silently incomplete one.
type ExternalToolError struct {
	Tool string
	Err  error
}

func (e *ExternalToolError) Error() string {
	return fmt.Sprintf("external tool %s: %v", e.Tool, e.Err)
}

func (e *ExternalToolError) Unwrap() error { return e.Err }

// Runner executes one batch of region queries against the sequence
// source and returns its raw output.
type Runner interface {
	Lookup(queries []string) ([]byte, error)
}

// FaidxRunner shells out to samtools faidx, one invocation per batch
// with one positional region argument per query.
type FaidxRunner struct {
	Samtools string
	FastaRef string
}

func (r *FaidxRunner) Lookup(queries []string) ([]byte, error) {
	args := make([]string, 0, len(queries)+2)
	args = append(args, "faidx", r.FastaRef)
	args = append(args, queries...)
	out, err := exec.Command(r.Samtools, args...).Output()
	if err != nil {
		return nil, &ExternalToolError{Tool: r.Samtools, Err: err}
	}
	return out, nil
}

// DefaultWorkers returns the worker-count ceiling: four per logical CPU.
func DefaultWorkers() int {
	return runtime.NumCPU() * 4
}

// Engine runs batched lookups and reconciles allele orientation against
// the returned bases. All pool state is scoped to a single call, so one
// engine value is safe for sequential reuse.
type Engine struct {
	runner    Runner
	workers   int
	batchSize int
	logger    *zap.Logger
}

// NewEngine creates a lookup engine with default batching and worker
// count.
func NewEngine(r Runner) *Engine {
	return &Engine{
		runner:    r,
		workers:   DefaultWorkers(),
		batchSize: DefaultBatchSize,
		logger:    zap.NewNop(),
	}
}

// SetLogger sets the logger for progress messages.
func (e *Engine) SetLogger(l *zap.Logger) {
	e.logger = l
}

// SetWorkers overrides the pool size, clamped to [1, DefaultWorkers].
func (e *Engine) SetWorkers(n int) {
	max := DefaultWorkers()
	if n < 1 {
		n = 1
	}
	if n > max {
		n = max
	}
	e.workers = n
}

// SetBatchSize overrides the queries-per-invocation batch size.
func (e *Engine) SetBatchSize(n int) {
	if n > 0 {
		e.batchSize = n
	}
}

// BuildQueries forms one closed single-base region query per row from
// its new-build chromosome and position.
func BuildQueries(missing *table.Table) ([]string, error) {
	const stage = "seqlookup"
	chrIdx, err := missing.ColumnIndex(stage, harmonize.ColChrNew)
	if err != nil {
		return nil, err
	}
	posIdx, err := missing.ColumnIndex(stage, harmonize.ColPosNew)
	if err != nil {
		return nil, err
	}
	queries := make([]string, missing.NumRows())
	for i, r := range missing.Rows() {
		queries[i] = fmt.Sprintf("chr%s:%s-%s", r[chrIdx], r[posIdx], r[posIdx])
	}
	return queries, nil
}

// LookupBases resolves every query to a single upper-case base. The
// ordered query list is partitioned into fixed-size batches; workers
// claim batch indexes from a shared atomic counter and write results
// into a pre-sized buffer at batchStart+offset, so the output order
// equals the input order no matter which worker finishes which batch
// first. Header lines in the tool output are skipped; any multi-character
// line maps to AmbiguousBase.
func (e *Engine) LookupBases(queries []string) ([]string, error) {
	n := len(queries)
	if n == 0 {
		return nil, nil
	}
	bases := make([]string, n)
	batches := (n + e.batchSize - 1) / e.batchSize
	workers := e.workers
	if workers > batches {
		workers = batches
	}
	e.logger.Info("running sequence lookup",
		zap.Int("queries", n),
		zap.Int("batch_size", e.batchSize),
		zap.Int("batches", batches),
		zap.Int("workers", workers))

	var next atomic.Uint64
	errs := make([]error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		w := w
		go func() {
			defer wg.Done()
			for {
				b := int(next.Add(1)) - 1
				if b >= batches {
					return
				}
				start := b * e.batchSize
				end := start + e.batchSize
				if end > n {
					end = n
				}
				out, err := e.runner.Lookup(queries[start:end])
				if err != nil {
					errs[w] = err
					return
				}
				// Batches cover disjoint index ranges, so writing
				// bases[start:end] needs no locking.
				parseBatch(out, bases[start:end])
			}
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return bases, nil
}

// parseBatch extracts one base per non-header output line into dst.
func parseBatch(out []byte, dst []string) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	i := 0
	for sc.Scan() && i < len(dst) {
		line := sc.Text()
		if strings.HasPrefix(line, ">") {
			continue
		}
		if len(line) > 1 {
			dst[i] = AmbiguousBase
		} else {
			dst[i] = strings.ToUpper(line)
		}
		i++
	}
}

// Resolve looks up the reference base for every missing row and appends
// the rows, in original order, to matched. A row whose looked-up base
// equals its current alt allele was recorded backwards relative to the
// reference genome and is flip-normalized; any other base, including an
// ambiguous one, leaves the row untouched. Both cases keep the row.
func (e *Engine) Resolve(matched, missing *table.Table) error {
	const stage = "seqlookup"
	queries, err := BuildQueries(missing)
	if err != nil {
		return err
	}
	bases, err := e.LookupBases(queries)
	if err != nil {
		return err
	}

	var idx struct {
		ref, alt, effect, eaf int
	}
	for _, c := range []struct {
		name string
		dst  *int
	}{
		{harmonize.ColRef, &idx.ref}, {harmonize.ColAlt, &idx.alt},
		{harmonize.ColEffect, &idx.effect}, {harmonize.ColEAF, &idx.eaf},
	} {
		if *c.dst, err = missing.ColumnIndex(stage, c.name); err != nil {
			return err
		}
	}

	flips := 0
	for i, r := range missing.Rows() {
		row := append([]string(nil), r...)
		if bases[i] == row[idx.alt] {
			if err := harmonize.FlipAlleles(row, idx.ref, idx.alt, idx.effect, idx.eaf); err != nil {
				return fmt.Errorf("%s: row %d: %w", stage, i, err)
			}
			flips++
		}
		if err := matched.AppendRow(row); err != nil {
			return err
		}
	}
	e.logger.Info("sequence lookup reconciled",
		zap.Int("rows", missing.NumRows()),
		zap.Int("flipped", flips))
	return nil
}
