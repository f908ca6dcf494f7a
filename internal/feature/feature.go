// Package feature holds the in-memory attribute tables loaded from NID
// shapefiles: typed columns, one geometry per row and a CRS tag.
package feature

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/twpayne/go-geom"
)

// Kind is the geometry kind encoded in an NID shapefile name.
type Kind string

const (
	KindPoint Kind = "point"
	KindLine  Kind = "line"
	KindArea  Kind = "area"
)

// Kinds lists every geometry kind in output order.
var Kinds = []Kind{KindPoint, KindLine, KindArea}

// ParseKind maps a shapefile name fragment to a Kind, ignoring case.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(s)) {
	case KindPoint:
		return KindPoint, true
	case KindLine:
		return KindLine, true
	case KindArea:
		return KindArea, true
	}
	return "", false
}

// ColumnType is the storage type of an attribute column.
type ColumnType int

const (
	TypeString ColumnType = iota
	TypeInteger
	TypeReal
	TypeBoolean
	TypeDate
)

func (t ColumnType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInteger:
		return "integer"
	case TypeReal:
		return "real"
	case TypeBoolean:
		return "boolean"
	case TypeDate:
		return "date"
	}
	return fmt.Sprintf("ColumnType(%d)", int(t))
}

// Column is one attribute column.
type Column struct {
	Name string
	Type ColumnType
}

// Row is one feature. Values are aligned with the owning collection's
// Columns; nil marks a null. Values hold string, int64, float64, bool or
// time.Time according to the column type. Geometry may be nil.
type Row struct {
	Values   []any
	Geometry geom.T
}

// Collection is a table of features tagged with a coordinate reference system.
type Collection struct {
	Columns []Column
	Rows    []Row
	SRID    int
}

// Len returns the number of rows.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Rows)
}

// ColumnIndex returns the position of the named column, or -1.
func (c *Collection) ColumnIndex(name string) int {
	for i, col := range c.Columns {
		if col.Name == name {
			return i
		}
	}
	return -1
}

// SetSRID tags the collection with a CRS, overriding any previous tag.
func (c *Collection) SetSRID(srid int) {
	c.SRID = srid
}

// Concat merges collections into one. Columns are the union of all inputs
// in first-seen order and missing values are null. A column whose type
// differs between inputs becomes a string column; call Normalize to coerce
// its values. The result carries the SRID of the first collection.
func Concat(parts []*Collection) *Collection {
	out := &Collection{}
	if len(parts) == 0 {
		return out
	}
	out.SRID = parts[0].SRID

	index := make(map[string]int)
	total := 0
	for _, p := range parts {
		total += len(p.Rows)
		for _, col := range p.Columns {
			idx, ok := index[col.Name]
			if !ok {
				index[col.Name] = len(out.Columns)
				out.Columns = append(out.Columns, col)
				continue
			}
			if out.Columns[idx].Type != col.Type {
				out.Columns[idx].Type = TypeString
			}
		}
	}

	out.Rows = make([]Row, 0, total)
	for _, p := range parts {
		mapping := make([]int, len(p.Columns))
		for i, col := range p.Columns {
			mapping[i] = index[col.Name]
		}
		for _, r := range p.Rows {
			values := make([]any, len(out.Columns))
			for i, v := range r.Values {
				if i < len(mapping) {
					values[mapping[i]] = v
				}
			}
			out.Rows = append(out.Rows, Row{Values: values, Geometry: r.Geometry})
		}
	}

	return out
}

// Normalize converts every value of a string column to its string
// representation, leaving nulls as nil, so each column holds a single type.
func (c *Collection) Normalize() {
	for i, col := range c.Columns {
		if col.Type != TypeString {
			continue
		}
		for r := range c.Rows {
			if i >= len(c.Rows[r].Values) {
				continue
			}
			c.Rows[r].Values[i] = stringify(c.Rows[r].Values[i])
		}
	}
}

// stringify renders a value the way it reads in the source attribute table.
func stringify(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.DateOnly)
	default:
		return fmt.Sprint(x)
	}
}
