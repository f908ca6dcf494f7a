package gpkg

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/nid2geo/internal/crs"
	"github.com/sells-group/nid2geo/internal/feature"
)

func pointCollection(n int) *feature.Collection {
	c := &feature.Collection{
		SRID: crs.SRIDPoland,
		Columns: []feature.Column{
			{Name: "nazwa", Type: feature.TypeString},
			{Name: "nr", Type: feature.TypeInteger},
			{Name: "pow", Type: feature.TypeReal},
			{Name: "aktywny", Type: feature.TypeBoolean},
			{Name: "data", Type: feature.TypeDate},
			{Name: "geom", Type: feature.TypeString},
		},
	}
	for i := 0; i < n; i++ {
		c.Rows = append(c.Rows, feature.Row{
			Values: []any{
				"Zamek w Łańcucie",
				int64(i),
				12.5,
				i%2 == 0,
				time.Date(1987, 6, 12, 0, 0, 0, 0, time.UTC),
				"kolizja",
			},
			Geometry: geom.NewPointFlat(geom.XY, []float64{float64(600000 + i), 250000}),
		})
	}
	return c
}

func areaCollection(t *testing.T) *feature.Collection {
	t.Helper()
	poly := geom.NewPolygonFlat(geom.XY, []float64{0, 0, 0, 10, 10, 10, 10, 0, 0, 0}, []int{10})
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(poly))
	return &feature.Collection{
		SRID:    crs.SRIDPoland,
		Columns: []feature.Column{{Name: "opis", Type: feature.TypeString}},
		Rows: []feature.Row{
			{Values: []any{"park"}, Geometry: mp},
			{Values: []any{nil}, Geometry: nil},
		},
	}
}

func TestWriteLayer_MultipleLayersAppend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "zabytki.gpkg")

	p, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, p.WriteLayer(ctx, "zabytki_point", pointCollection(3)))
	require.NoError(t, p.Close())

	// Reopening must keep the first layer.
	p, err = Open(ctx, path)
	require.NoError(t, err)
	defer p.Close() //nolint:errcheck
	require.NoError(t, p.WriteLayer(ctx, "zabytki_area", areaCollection(t)))

	layers, err := p.Layers(ctx)
	require.NoError(t, err)
	require.Len(t, layers, 2)

	assert.Equal(t, Layer{Name: "zabytki_area", GeometryType: "MULTIPOLYGON", SRID: 2180, FeatureCount: 2}, layers[0])
	assert.Equal(t, Layer{Name: "zabytki_point", GeometryType: "POINT", SRID: 2180, FeatureCount: 3}, layers[1])
}

func TestWriteLayer_ReplacesSameName(t *testing.T) {
	ctx := context.Background()
	p, err := Open(ctx, filepath.Join(t.TempDir(), "x.gpkg"))
	require.NoError(t, err)
	defer p.Close() //nolint:errcheck

	require.NoError(t, p.WriteLayer(ctx, "x_point", pointCollection(5)))
	require.NoError(t, p.WriteLayer(ctx, "x_point", pointCollection(2)))

	layers, err := p.Layers(ctx)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, int64(2), layers[0].FeatureCount)
}

func TestReadLayer_RoundTrip(t *testing.T) {
	ctx := context.Background()
	p, err := Open(ctx, filepath.Join(t.TempDir(), "rt.gpkg"))
	require.NoError(t, err)
	defer p.Close() //nolint:errcheck

	require.NoError(t, p.WriteLayer(ctx, "rt_point", pointCollection(2)))

	got, err := p.ReadLayer(ctx, "rt_point")
	require.NoError(t, err)
	assert.Equal(t, 2180, got.SRID)
	require.Equal(t, 2, got.Len())

	names := make([]string, len(got.Columns))
	for i, c := range got.Columns {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"nazwa", "nr", "pow", "aktywny", "data", "geom_1"}, names)

	row := got.Rows[1]
	assert.Equal(t, "Zamek w Łańcucie", row.Values[0])
	assert.Equal(t, int64(1), row.Values[1])
	assert.Equal(t, 12.5, row.Values[2])
	assert.Equal(t, false, row.Values[3])
	d, ok := row.Values[4].(time.Time)
	require.True(t, ok)
	assert.Equal(t, 1987, d.Year())
	assert.Equal(t, time.June, d.Month())
	assert.Equal(t, "kolizja", row.Values[5])
	assert.Equal(t, []float64{600001, 250000}, row.Geometry.FlatCoords())
}

func TestAttributeColumns(t *testing.T) {
	cols := []feature.Column{
		{Name: "Nazwa"}, {Name: "fid"}, {Name: "NAZWA"}, {Name: "nazwa_1"}, {Name: "GEOM"}, {Name: "nazwa"},
	}
	assert.Equal(t,
		[]string{"Nazwa", "fid_1", "NAZWA_2", "nazwa_1", "GEOM_1", "nazwa_3"},
		attributeColumns(cols))
}

func TestWriteLayer_CaseOnlyColumnNames(t *testing.T) {
	ctx := context.Background()
	p, err := Open(ctx, filepath.Join(t.TempDir(), "case.gpkg"))
	require.NoError(t, err)
	defer p.Close() //nolint:errcheck

	c := &feature.Collection{
		SRID:    2180,
		Columns: []feature.Column{{Name: "Nazwa", Type: feature.TypeString}, {Name: "NAZWA", Type: feature.TypeString}},
		Rows: []feature.Row{
			{Values: []any{"Zamek", nil}, Geometry: geom.NewPointFlat(geom.XY, []float64{1, 2})},
			{Values: []any{nil, "Kościół"}, Geometry: geom.NewPointFlat(geom.XY, []float64{3, 4})},
		},
	}
	require.NoError(t, p.WriteLayer(ctx, "case_point", c))

	got, err := p.ReadLayer(ctx, "case_point")
	require.NoError(t, err)
	require.Len(t, got.Columns, 2)
	assert.Equal(t, "Nazwa", got.Columns[0].Name)
	assert.Equal(t, "NAZWA_1", got.Columns[1].Name)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, []any{"Zamek", nil}, got.Rows[0].Values)
	assert.Equal(t, []any{nil, "Kościół"}, got.Rows[1].Values)
}

func TestOpen_SetsApplicationIDAndSRS(t *testing.T) {
	ctx := context.Background()
	p, err := Open(ctx, filepath.Join(t.TempDir(), "meta.gpkg"))
	require.NoError(t, err)
	defer p.Close() //nolint:errcheck

	var appID, version int64
	require.NoError(t, p.db.QueryRowContext(ctx, "PRAGMA application_id").Scan(&appID))
	require.NoError(t, p.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, int64(ApplicationID), appID)
	assert.Equal(t, int64(UserVersion), version)

	var def string
	require.NoError(t, p.db.QueryRowContext(ctx,
		"SELECT definition FROM gpkg_spatial_ref_sys WHERE srs_id = 2180").Scan(&def))
	assert.Contains(t, def, "Poland CS92")
}

func TestEncodeDecodeGeometry(t *testing.T) {
	ls := geom.NewLineStringFlat(geom.XY, []float64{1, 2, 3, 4})
	mls := geom.NewMultiLineString(geom.XY)
	require.NoError(t, mls.Push(ls))

	blob, err := EncodeGeometry(mls, 2180)
	require.NoError(t, err)
	assert.Equal(t, []byte{'G', 'P', 0, 0x03}, blob[:4])

	g, srid, err := DecodeGeometry(blob)
	require.NoError(t, err)
	assert.Equal(t, 2180, srid)
	assert.Equal(t, []float64{1, 2, 3, 4}, g.FlatCoords())

	blob, err = EncodeGeometry(geom.NewPointFlat(geom.XY, []float64{5, 6}), 2180)
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), blob[3])

	blob, err = EncodeGeometry(nil, 2180)
	require.NoError(t, err)
	assert.Nil(t, blob)

	_, _, err = DecodeGeometry([]byte("nope-nope"))
	assert.Error(t, err)
}
