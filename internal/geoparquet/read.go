package geoparquet

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/rotisserie/eris"
)

// FileInfo summarises a GeoParquet file.
type FileInfo struct {
	NumRows int64
	Columns []string
	Geo     *Metadata
}

// Inspect reads the footer of a GeoParquet file.
func Inspect(path string) (*FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geoparquet: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	st, err := f.Stat()
	if err != nil {
		return nil, eris.Wrapf(err, "geoparquet: stat %s", path)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, eris.Wrapf(err, "geoparquet: read footer of %s", path)
	}

	info := &FileInfo{NumRows: pf.NumRows()}
	for _, col := range pf.Schema().Columns() {
		info.Columns = append(info.Columns, strings.Join(col, "."))
	}
	if raw, ok := pf.Lookup(metadataKey); ok {
		var meta Metadata
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return nil, eris.Wrapf(err, "geoparquet: decode geo metadata of %s", path)
		}
		info.Geo = &meta
	}
	return info, nil
}

// ReadRecords loads every row as a map from column name to value. Text
// columns come back as string, the geometry column as WKB []byte, dates as
// days since the Unix epoch.
func ReadRecords(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geoparquet: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := parquet.NewReader(f)
	defer r.Close() //nolint:errcheck

	columns := r.Schema().Columns()
	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = strings.Join(col, ".")
	}

	var records []map[string]any
	buf := make([]parquet.Row, 128)
	for {
		n, err := r.ReadRows(buf)
		for _, row := range buf[:n] {
			rec := make(map[string]any, len(names))
			for _, v := range row {
				rec[names[v.Column()]] = fromValue(v, names[v.Column()] == GeometryColumn)
			}
			records = append(records, rec)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "geoparquet: read rows of %s", path)
		}
		if n == 0 {
			break
		}
	}
	return records, nil
}

func fromValue(v parquet.Value, binary bool) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return v.Int32()
	case parquet.Int64:
		return v.Int64()
	case parquet.Double:
		return v.Double()
	case parquet.Float:
		return float64(v.Float())
	case parquet.ByteArray, parquet.FixedLenByteArray:
		if binary {
			return append([]byte(nil), v.ByteArray()...)
		}
		return string(v.ByteArray())
	}
	return v.String()
}
