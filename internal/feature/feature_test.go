package feature

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func pt(x, y float64) geom.T {
	return geom.NewPointFlat(geom.XY, []float64{x, y})
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("AREA")
	require.True(t, ok)
	assert.Equal(t, KindArea, k)

	_, ok = ParseKind("polygon")
	assert.False(t, ok)
}

func TestConcat_UnionsColumnsAndKeepsFirstSRID(t *testing.T) {
	a := &Collection{
		SRID:    2180,
		Columns: []Column{{Name: "nazwa", Type: TypeString}, {Name: "nr", Type: TypeInteger}},
		Rows: []Row{
			{Values: []any{"kościół", int64(1)}, Geometry: pt(1, 1)},
		},
	}
	b := &Collection{
		SRID:    4326,
		Columns: []Column{{Name: "gmina", Type: TypeString}, {Name: "nazwa", Type: TypeString}},
		Rows: []Row{
			{Values: []any{"Kraków", "dwór"}, Geometry: pt(2, 2)},
			{Values: []any{nil, "młyn"}, Geometry: nil},
		},
	}

	out := Concat([]*Collection{a, b})

	assert.Equal(t, 2180, out.SRID)
	require.Equal(t, []Column{
		{Name: "nazwa", Type: TypeString},
		{Name: "nr", Type: TypeInteger},
		{Name: "gmina", Type: TypeString},
	}, out.Columns)
	require.Equal(t, 3, out.Len())
	assert.Equal(t, []any{"kościół", int64(1), nil}, out.Rows[0].Values)
	assert.Equal(t, []any{"dwór", nil, "Kraków"}, out.Rows[1].Values)
	assert.Equal(t, []any{"młyn", nil, nil}, out.Rows[2].Values)
	assert.Nil(t, out.Rows[2].Geometry)
}

func TestConcat_Empty(t *testing.T) {
	out := Concat(nil)
	require.NotNil(t, out)
	assert.Equal(t, 0, out.Len())
}

func TestConcat_TypeConflictBecomesString(t *testing.T) {
	a := &Collection{
		Columns: []Column{{Name: "rok", Type: TypeInteger}},
		Rows:    []Row{{Values: []any{int64(1905)}}},
	}
	b := &Collection{
		Columns: []Column{{Name: "rok", Type: TypeString}},
		Rows:    []Row{{Values: []any{"XIX w."}}, {Values: []any{nil}}},
	}

	out := Concat([]*Collection{a, b})
	require.Equal(t, TypeString, out.Columns[0].Type)

	out.Normalize()
	assert.Equal(t, "1905", out.Rows[0].Values[0])
	assert.Equal(t, "XIX w.", out.Rows[1].Values[0])
	assert.Nil(t, out.Rows[2].Values[0])
}

func TestNormalize_LeavesTypedColumns(t *testing.T) {
	c := &Collection{
		Columns: []Column{
			{Name: "s", Type: TypeString},
			{Name: "f", Type: TypeReal},
			{Name: "d", Type: TypeString},
		},
		Rows: []Row{
			{Values: []any{2.5, 2.5, time.Date(1970, 3, 1, 0, 0, 0, 0, time.UTC)}},
		},
	}
	c.Normalize()

	assert.Equal(t, "2.5", c.Rows[0].Values[0])
	assert.Equal(t, 2.5, c.Rows[0].Values[1])
	assert.Equal(t, "1970-03-01", c.Rows[0].Values[2])
}

// rowKeys renders each row as name-sorted column=value pairs plus its
// coordinates, so the keys do not depend on column order.
func rowKeys(c *Collection) []string {
	order := make([]int, len(c.Columns))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return c.Columns[order[a]].Name < c.Columns[order[b]].Name })

	keys := make([]string, 0, c.Len())
	for _, r := range c.Rows {
		var b strings.Builder
		for _, i := range order {
			b.WriteString(c.Columns[i].Name)
			b.WriteByte('=')
			b.WriteString(toString(stringify(r.Values[i])))
			b.WriteByte(';')
		}
		if r.Geometry != nil {
			for _, f := range r.Geometry.FlatCoords() {
				b.WriteString(toString(stringify(f)))
				b.WriteByte(',')
			}
		}
		keys = append(keys, b.String())
	}
	sort.Strings(keys)
	return keys
}

func toString(v any) string {
	if v == nil {
		return "<nil>"
	}
	return v.(string)
}

func TestConcat_PermutationInvariant(t *testing.T) {
	a := &Collection{
		SRID:    2180,
		Columns: []Column{{Name: "id", Type: TypeInteger}},
		Rows:    []Row{{Values: []any{int64(1)}, Geometry: pt(0, 0)}, {Values: []any{int64(2)}, Geometry: pt(1, 0)}},
	}
	b := &Collection{
		SRID:    2180,
		Columns: []Column{{Name: "opis", Type: TypeString}, {Name: "id", Type: TypeInteger}},
		Rows:    []Row{{Values: []any{"x", int64(3)}, Geometry: pt(5, 5)}},
	}
	c := &Collection{
		SRID:    2180,
		Columns: []Column{{Name: "id", Type: TypeInteger}},
		Rows:    []Row{{Values: []any{int64(4)}, Geometry: pt(9, 9)}},
	}

	want := rowKeys(Concat([]*Collection{a, b, c}))
	for _, order := range [][]*Collection{{c, b, a}, {b, a, c}, {a, c, b}} {
		assert.Equal(t, want, rowKeys(Concat(order)))
	}
}
