package table

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// DelimRune maps a legend delimiter spec to the delimiter rune.
// Accepted forms: "\t"/"tab", ","/"comma", "space".
func DelimRune(spec string) (rune, error) {
	switch spec {
	case "\t", "tab":
		return '\t', nil
	case ",", "comma":
		return ',', nil
	case "space":
		return ' ', nil
	default:
		return 0, fmt.Errorf("invalid column delimiter %q", spec)
	}
}

// Read parses delimited text with a header line into a table.
// The csv reader enforces a constant field count per record, so the shape
// invariant holds by construction.
func Read(r io.Reader, delim rune, stage string) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s: input is empty", stage)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", stage, err)
	}
	t := New(header...)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: read row %d: %w", stage, len(t.rows)+1, err)
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

// ReadFile reads a delimited file, decompressing transparently when the
// file starts with the gzip magic bytes.
func ReadFile(path string, delim rune, stage string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stage, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	magic, err := br.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%s: gzip reader: %w", stage, err)
		}
		defer gz.Close()
		return Read(gz, delim, stage)
	}
	return Read(br, delim, stage)
}

// WriteGzip writes the table as gzip-compressed tab-separated text with a
// header line. The file is written to a temporary name in the same
// directory and renamed into place, so a failed run leaves no partial
// output behind.
func (t *Table) WriteGzip(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	gz := gzip.NewWriter(tmp)
	w := bufio.NewWriter(gz)
	if _, err := w.WriteString(strings.Join(t.cols, "\t") + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	for _, r := range t.rows {
		if _, err := w.WriteString(strings.Join(r, "\t") + "\n"); err != nil {
			tmp.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}
