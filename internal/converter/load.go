package converter

import (
	"strconv"
	"strings"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nid2geo/internal/feature"
)

// loadShapefile reads a shapefile and its attribute table into a collection,
// decoding text with codec. A text value the codec rejects fails the whole
// load so the caller can retry with another codec.
func loadShapefile(shpPath string, codec textCodec) (*feature.Collection, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "converter: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	columns := make([]feature.Column, len(fields))
	for i, f := range fields {
		name, err := codec.Field(strings.TrimRight(string(f.Name[:]), "\x00"))
		if err != nil {
			return nil, eris.Wrapf(err, "converter: field %d of %s", i, shpPath)
		}
		columns[i] = feature.Column{Name: name, Type: columnType(f)}
	}

	c := &feature.Collection{Columns: columns}
	var nulls int

	for reader.Next() {
		n, shape := reader.Shape()

		values := make([]any, len(columns))
		for i, col := range columns {
			raw := strings.TrimSpace(strings.TrimRight(reader.ReadAttribute(n, i), "\x00"))
			if raw == "" {
				continue
			}
			v, err := parseValue(raw, col.Type, codec)
			if err != nil {
				return nil, eris.Wrapf(err, "converter: record %d column %s of %s", n, col.Name, shpPath)
			}
			values[i] = v
		}

		g := feature.FromShape(shape)
		if g == nil {
			nulls++
		}
		c.Rows = append(c.Rows, feature.Row{Values: values, Geometry: g})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "converter: read shapefile %s", shpPath)
	}

	if nulls > 0 {
		zap.L().Debug("converter: records without geometry",
			zap.String("path", shpPath),
			zap.Int("count", nulls),
		)
	}

	return c, nil
}

// columnType maps a dBASE field descriptor to a column type.
func columnType(f shp.Field) feature.ColumnType {
	switch f.Fieldtype {
	case 'N':
		if f.Precision == 0 && f.Size < 19 {
			return feature.TypeInteger
		}
		return feature.TypeReal
	case 'F':
		return feature.TypeReal
	case 'L':
		return feature.TypeBoolean
	case 'D':
		return feature.TypeDate
	}
	return feature.TypeString
}

// parseValue converts a trimmed, non-empty raw attribute. Unparseable
// numbers, dates and logicals become null.
func parseValue(raw string, typ feature.ColumnType, codec textCodec) (any, error) {
	switch typ {
	case feature.TypeInteger:
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return v, nil
		}
		return nil, nil
	case feature.TypeReal:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v, nil
		}
		return nil, nil
	case feature.TypeBoolean:
		switch raw {
		case "T", "t", "Y", "y":
			return true, nil
		case "F", "f", "N", "n":
			return false, nil
		}
		return nil, nil
	case feature.TypeDate:
		if v, err := time.Parse("20060102", raw); err == nil {
			return v, nil
		}
		return nil, nil
	}
	return codec.Value(raw)
}
