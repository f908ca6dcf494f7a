package gpkg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/nid2geo/internal/feature"
)

// ReadLayer loads a feature table back into a collection. The fid column is
// dropped; attribute types follow the declared SQL column types.
func (p *Package) ReadLayer(ctx context.Context, name string) (*feature.Collection, error) {
	c := &feature.Collection{}
	if err := p.db.QueryRowContext(ctx,
		`SELECT srs_id FROM gpkg_geometry_columns WHERE table_name = ?`, name,
	).Scan(&c.SRID); err != nil {
		return nil, eris.Wrapf(err, "gpkg: layer %s", name)
	}

	info, err := p.db.QueryContext(ctx, "SELECT name, type FROM pragma_table_info(?) ORDER BY cid", name)
	if err != nil {
		return nil, eris.Wrapf(err, "gpkg: describe %s", name)
	}
	var selected []string
	for info.Next() {
		var col, typ string
		if err := info.Scan(&col, &typ); err != nil {
			_ = info.Close()
			return nil, eris.Wrapf(err, "gpkg: describe %s", name)
		}
		if col == fidColumn || col == GeometryColumn {
			continue
		}
		c.Columns = append(c.Columns, feature.Column{Name: col, Type: columnType(typ)})
		selected = append(selected, quote(col))
	}
	_ = info.Close()
	if err := info.Err(); err != nil {
		return nil, eris.Wrapf(err, "gpkg: describe %s", name)
	}

	query := fmt.Sprintf("SELECT %s", quote(GeometryColumn))
	if len(selected) > 0 {
		query += ", " + strings.Join(selected, ", ")
	}
	query += fmt.Sprintf(" FROM %s ORDER BY %s", quote(name), quote(fidColumn))

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "gpkg: read %s", name)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var blob []byte
		raw := make([]any, len(c.Columns))
		dest := make([]any, 0, len(c.Columns)+1)
		dest = append(dest, &blob)
		for i := range raw {
			dest = append(dest, &raw[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrapf(err, "gpkg: scan %s", name)
		}

		g, _, err := DecodeGeometry(blob)
		if err != nil {
			return nil, err
		}
		values := make([]any, len(c.Columns))
		for i, col := range c.Columns {
			values[i] = fromSQL(raw[i], col.Type)
		}
		c.Rows = append(c.Rows, feature.Row{Values: values, Geometry: g})
	}
	return c, eris.Wrapf(rows.Err(), "gpkg: read %s", name)
}

func columnType(sqlType string) feature.ColumnType {
	switch strings.ToUpper(sqlType) {
	case "INTEGER", "INT", "MEDIUMINT", "SMALLINT", "TINYINT":
		return feature.TypeInteger
	case "REAL", "DOUBLE", "FLOAT":
		return feature.TypeReal
	case "BOOLEAN":
		return feature.TypeBoolean
	case "DATE":
		return feature.TypeDate
	}
	return feature.TypeString
}

// fromSQL converts a scanned driver value to the representation used by
// feature.Row for the column type.
func fromSQL(v any, typ feature.ColumnType) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch x := v.(type) {
	case nil:
		return nil
	case int64:
		switch typ {
		case feature.TypeBoolean:
			return x != 0
		case feature.TypeReal:
			return float64(x)
		}
	case string:
		if typ == feature.TypeDate {
			if t, err := time.Parse(time.DateOnly, x); err == nil {
				return t
			}
		}
	case time.Time:
		if typ == feature.TypeString {
			return x.Format(time.DateOnly)
		}
	}
	return v
}
