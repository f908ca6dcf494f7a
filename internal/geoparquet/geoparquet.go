// Package geoparquet writes feature collections as GeoParquet files: one
// optional column per attribute plus a WKB geometry column described by the
// "geo" file metadata key.
package geoparquet

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/sells-group/nid2geo/internal/crs"
	"github.com/sells-group/nid2geo/internal/feature"
)

const (
	// GeometryColumn is the primary geometry column name.
	GeometryColumn = "geometry"
	// Version is the GeoParquet metadata version written.
	Version = "1.0.0"

	metadataKey = "geo"
	batchSize   = 1024
)

// Metadata is the value of the "geo" key.
type Metadata struct {
	Version       string                    `json:"version"`
	PrimaryColumn string                    `json:"primary_column"`
	Columns       map[string]ColumnMetadata `json:"columns"`
}

// ColumnMetadata describes one geometry column.
type ColumnMetadata struct {
	Encoding      string          `json:"encoding"`
	GeometryTypes []string        `json:"geometry_types"`
	CRS           json.RawMessage `json:"crs,omitempty"`
	BBox          []float64       `json:"bbox,omitempty"`
}

// WriteFile writes c to path, replacing any existing file. The data is
// written to a temporary file in the same directory and renamed into place.
func WriteFile(path string, c *feature.Collection) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".nid2geo-*.parquet")
	if err != nil {
		return eris.Wrapf(err, "geoparquet: create temp file for %s", path)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := Write(tmp, c); err != nil {
		_ = tmp.Close()
		return eris.Wrapf(err, "geoparquet: write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "geoparquet: close %s", path)
	}
	return eris.Wrapf(os.Rename(tmp.Name(), path), "geoparquet: rename into %s", path)
}

// Write encodes c as GeoParquet to w.
func Write(w io.Writer, c *feature.Collection) error {
	names := attributeNames(c.Columns)

	group := parquet.Group{}
	for i, col := range c.Columns {
		group[names[i]] = parquet.Optional(node(col.Type))
	}
	group[GeometryColumn] = parquet.Optional(parquet.Leaf(parquet.ByteArrayType))
	schema := parquet.NewSchema("feature", group)

	leaves := make([]int, len(names))
	for i, name := range names {
		leaf, ok := schema.Lookup(name)
		if !ok {
			return eris.Errorf("geoparquet: column %s missing from schema", name)
		}
		leaves[i] = leaf.ColumnIndex
	}
	geomLeaf, ok := schema.Lookup(GeometryColumn)
	if !ok {
		return eris.New("geoparquet: geometry column missing from schema")
	}

	meta, err := json.Marshal(metadataFor(c))
	if err != nil {
		return eris.Wrap(err, "geoparquet: encode metadata")
	}

	pw := parquet.NewWriter(w, schema,
		parquet.KeyValueMetadata(metadataKey, string(meta)),
		parquet.Compression(&parquet.Snappy),
	)

	width := len(names) + 1
	batch := make([]parquet.Row, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := pw.WriteRows(batch); err != nil {
			return eris.Wrap(err, "geoparquet: write rows")
		}
		batch = batch[:0]
		return nil
	}

	for n, r := range c.Rows {
		row := make(parquet.Row, width)
		for i, col := range c.Columns {
			var v any
			if i < len(r.Values) {
				v = r.Values[i]
			}
			pv, err := value(v, col.Type)
			if err != nil {
				return eris.Wrapf(err, "geoparquet: row %d column %s", n, col.Name)
			}
			row[leaves[i]] = level(pv, leaves[i])
		}

		gv := parquet.NullValue()
		if r.Geometry != nil {
			data, err := wkb.Marshal(r.Geometry, wkb.NDR)
			if err != nil {
				return eris.Wrapf(err, "geoparquet: encode geometry of row %d", n)
			}
			gv = parquet.ByteArrayValue(data)
		}
		row[geomLeaf.ColumnIndex] = level(gv, geomLeaf.ColumnIndex)

		batch = append(batch, row)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	return eris.Wrap(pw.Close(), "geoparquet: close writer")
}

// level sets the definition level of an optional top-level column.
func level(v parquet.Value, column int) parquet.Value {
	if v.IsNull() {
		return v.Level(0, 0, column)
	}
	return v.Level(0, 1, column)
}

func node(t feature.ColumnType) parquet.Node {
	switch t {
	case feature.TypeInteger:
		return parquet.Int(64)
	case feature.TypeReal:
		return parquet.Leaf(parquet.DoubleType)
	case feature.TypeBoolean:
		return parquet.Leaf(parquet.BooleanType)
	case feature.TypeDate:
		return parquet.Date()
	}
	return parquet.String()
}

var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

func value(v any, t feature.ColumnType) (parquet.Value, error) {
	if v == nil {
		return parquet.NullValue(), nil
	}
	switch x := v.(type) {
	case string:
		if t == feature.TypeString {
			return parquet.ByteArrayValue([]byte(x)), nil
		}
	case int64:
		if t == feature.TypeInteger {
			return parquet.Int64Value(x), nil
		}
	case float64:
		if t == feature.TypeReal {
			return parquet.DoubleValue(x), nil
		}
	case bool:
		if t == feature.TypeBoolean {
			return parquet.BooleanValue(x), nil
		}
	case time.Time:
		if t == feature.TypeDate {
			days := x.UTC().Truncate(24*time.Hour).Sub(epoch) / (24 * time.Hour)
			return parquet.Int32Value(int32(days)), nil
		}
	}
	return parquet.Value{}, eris.Errorf("geoparquet: %T value in %s column", v, t)
}

func metadataFor(c *feature.Collection) Metadata {
	col := ColumnMetadata{
		Encoding:      "WKB",
		GeometryTypes: c.GeometryTypes(),
	}
	if def, ok := crs.Lookup(c.SRID); ok && def.PROJJSON != "" {
		col.CRS = json.RawMessage(def.PROJJSON)
	}
	if b := c.Bounds(); b != nil {
		col.BBox = []float64{b.Min(0), b.Min(1), b.Max(0), b.Max(1)}
	}
	return Metadata{
		Version:       Version,
		PrimaryColumn: GeometryColumn,
		Columns:       map[string]ColumnMetadata{GeometryColumn: col},
	}
}

// attributeNames returns the column names to write, suffixing an attribute
// that collides with the geometry column.
func attributeNames(cols []feature.Column) []string {
	taken := make(map[string]bool, len(cols)+1)
	for _, c := range cols {
		taken[c.Name] = true
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
		if c.Name == GeometryColumn {
			name := c.Name + "_attr"
			for taken[name] {
				name += "_"
			}
			taken[name] = true
			names[i] = name
		}
	}
	return names
}
