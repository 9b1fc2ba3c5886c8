// Package tabular reads contact spreadsheets (CSV or XLSX) into records keyed
// by their original header.
package tabular

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// Record is one data row keyed by header.
type Record map[string]string

// Table is a parsed spreadsheet.
type Table struct {
	Headers []string
	Records []Record
}

// CSVOptions configures the CSV parser.
type CSVOptions struct {
	// Delimiter defaults to the most frequent of ',', ';' and tab in the
	// header line.
	Delimiter  rune
	LazyQuotes bool
}

// ReadCSV parses r. The first row is the header; blank rows are skipped and
// short rows are padded with empty values.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions) (*Table, error) {
	br := bufio.NewReader(r)
	if opts.Delimiter == 0 {
		head, err := br.Peek(4096)
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return nil, eris.Wrap(err, "csv: peek header")
		}
		opts.Delimiter = sniffDelimiter(string(head))
	}

	reader := csv.NewReader(stripBOM(br))
	reader.Comma = opts.Delimiter
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1 // allow variable fields

	var rows [][]string
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "csv: context cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		rows = append(rows, record)
	}
	return FromRows(rows)
}

// FromRows builds a table from raw rows whose first row is the header.
func FromRows(rows [][]string) (*Table, error) {
	if len(rows) == 0 {
		return nil, eris.New("tabular: no header row")
	}
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}
	if !hasHeader(headers) {
		return nil, eris.New("tabular: header row is empty")
	}

	t := &Table{Headers: headers}
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec := make(Record, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(row) {
				rec[h] = strings.TrimSpace(row[i])
			} else {
				rec[h] = ""
			}
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

func sniffDelimiter(s string) rune {
	line, _, _ := strings.Cut(s, "\n")
	best, bestN := ',', strings.Count(line, ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(line, string(d)); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

func stripBOM(r *bufio.Reader) io.Reader {
	if b, err := r.Peek(3); err == nil && string(b) == "\xef\xbb\xbf" {
		_, _ = r.Discard(3)
	}
	return r
}

func hasHeader(headers []string) bool {
	for _, h := range headers {
		if h != "" {
			return true
		}
	}
	return false
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
