package sources

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Parser yields one record per source row. Next returns io.EOF after the
// last row; errors wrapping domain.ErrInvalidRecord or ErrFiltered consume
// the row and may be skipped.
type Parser interface {
	Next() (Record, error)
}

var gzipMagic = []byte{0x1f, 0x8b}

// decompress transparently unwraps gzip content detected by its magic bytes.
func decompress(r io.Reader) (io.Reader, io.Closer, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	head, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, err
	}
	if !bytes.Equal(head, gzipMagic) {
		return br, nopCloser{}, nil
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		return nil, nil, fmt.Errorf("open gzip: %w", err)
	}
	return zr, zr, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// table reads a delimited file with a header row. The delimiter is a tab
// unless the header contains none, in which case single spaces separate
// columns (STRING links files).
type table struct {
	cols map[string]int
	r    *csv.Reader
	line int
}

func newTable(r io.Reader) (*table, error) {
	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || header == "") {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty source file")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	header = strings.TrimRight(header, "\r\n")
	sep := '\t'
	if !strings.ContainsRune(header, '\t') {
		sep = ' '
	}
	cr := csv.NewReader(br)
	cr.Comma = sep
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	t := &table{cols: map[string]int{}, r: cr, line: 1}
	for i, name := range strings.Split(header, string(sep)) {
		name = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "#"))
		if _, dup := t.cols[name]; !dup {
			t.cols[name] = i
		}
	}
	return t, nil
}

// row is one data line addressed by header names.
type row struct {
	t      *table
	fields []string
	line   int
}

// next returns the next non-empty row. Malformed lines surface as csv.ParseError.
func (t *table) next() (row, error) {
	for {
		fields, err := t.r.Read()
		if err != nil {
			return row{}, err
		}
		t.line++
		if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
			continue
		}
		return row{t: t, fields: fields, line: t.line}, nil
	}
}

func (t *table) has(col string) bool {
	_, ok := t.cols[col]
	return ok
}

// find returns the first header with the given prefix and suffix.
func (t *table) find(prefix, suffix string) string {
	best := ""
	bestIdx := -1
	for name, idx := range t.cols {
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix) && (bestIdx < 0 || idx < bestIdx) {
			best, bestIdx = name, idx
		}
	}
	return best
}

// get returns the trimmed value of col, or "" when absent.
func (r row) get(col string) string {
	idx, ok := r.t.cols[col]
	if !ok || idx >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[idx])
}

// isFormatError reports csv parse failures that only affect one line.
func isFormatError(err error) bool {
	var pe *csv.ParseError
	return errors.As(err, &pe)
}
