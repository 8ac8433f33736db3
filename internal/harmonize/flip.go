// Package harmonize matches summary-statistics records against a
// reference catalog and normalizes allele orientation.
package harmonize

import (
	"fmt"
	"strconv"
)

// NumericParseError reports a cell that should hold a number but does
// not. Callers are expected to have validated these columns upstream, so
// this error is fatal.
type NumericParseError struct {
	Field string
	Value string
}

func (e *NumericParseError) Error() string {
	return fmt.Sprintf("%s value %q is not a number", e.Field, e.Value)
}

// FlipAlleles reorients a record in place: the ref and alt cells are
// swapped, the signed effect size is negated, and the allele frequency is
// complemented to 1-f. Applying it twice restores the original row.
// Only the four named cells are touched; no other row or global state is
// consulted.
func FlipAlleles(row []string, refPos, altPos, effectPos, freqPos int) error {
	row[refPos], row[altPos] = row[altPos], row[refPos]

	es, err := strconv.ParseFloat(row[effectPos], 64)
	if err != nil {
		return &NumericParseError{Field: "effect size", Value: row[effectPos]}
	}
	row[effectPos] = formatFloat(-es)

	f, err := strconv.ParseFloat(row[freqPos], 64)
	if err != nil {
		return &NumericParseError{Field: "allele frequency", Value: row[freqPos]}
	}
	row[freqPos] = formatFloat(1.0 - f)
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
