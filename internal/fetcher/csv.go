package fetcher

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures StreamCSV.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // 0 = none
	LazyQuotes bool
	TrimSpace  bool
}

// Record is one data row keyed by header name. Fields missing from a
// short row map to the empty string; extra fields are dropped.
type Record struct {
	Line   int
	Fields map[string]string
}

// Get returns the named field.
func (r Record) Get(name string) string {
	return r.Fields[name]
}

// StreamCSV reads a delimited file whose first row is the header and sends
// the data rows on the returned channel. Both channels are closed when the
// input is exhausted, on the first read error or when ctx is done.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan Record, <-chan error) {
	rowCh := make(chan Record, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.Comment = opts.Comment
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1

		var header []string
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			row, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}
			if opts.TrimSpace {
				for i := range row {
					row[i] = strings.TrimSpace(row[i])
				}
			}

			if header == nil {
				row[0] = strings.TrimPrefix(row[0], "\ufeff")
				header = row
				continue
			}

			line, _ := reader.FieldPos(0)
			rec := Record{Line: line, Fields: make(map[string]string, len(header))}
			for i, name := range header {
				if i < len(row) {
					rec.Fields[name] = row[i]
				} else {
					rec.Fields[name] = ""
				}
			}

			select {
			case rowCh <- rec:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadAll drains StreamCSV into a slice.
func ReadAll(ctx context.Context, r io.Reader, opts CSVOptions) ([]Record, error) {
	rowCh, errCh := StreamCSV(ctx, r, opts)
	var out []Record
	for rec := range rowCh {
		out = append(out, rec)
	}
	if err := <-errCh; err != nil {
		return out, err
	}
	return out, nil
}
