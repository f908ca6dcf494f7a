package converter

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
)

const wgs84PRJ = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["Degree",0.017453292519943295]]`

// memberName builds an NID-style shapefile base name.
func memberName(register, kind string, n int) string {
	return fmt.Sprintf("%s_abc_%s_%032X", register, kind, n)
}

type record struct {
	shape shp.Shape
	attrs []string
}

// writeShapefile creates base.shp/.shx/.dbf (and .prj when prj is set) in
// dir and returns the created paths.
func writeShapefile(t *testing.T, dir, base string, typ shp.ShapeType, fields []shp.Field, records []record, prj string) []string {
	t.Helper()

	w, err := shp.Create(filepath.Join(dir, base+".shp"), typ)
	require.NoError(t, err)
	require.NoError(t, w.SetFields(fields))
	for i, r := range records {
		w.Write(r.shape)
		for j, a := range r.attrs {
			require.NoError(t, w.WriteAttribute(i, j, a))
		}
	}
	w.Close()

	// go-shp names the attribute table "<base>dbf" when created through a
	// ".shp" path.
	require.NoError(t, os.Rename(filepath.Join(dir, base+"dbf"), filepath.Join(dir, base+".dbf")))

	paths := []string{
		filepath.Join(dir, base+".shp"),
		filepath.Join(dir, base+".shx"),
		filepath.Join(dir, base+".dbf"),
	}
	if prj != "" {
		p := filepath.Join(dir, base+".prj")
		require.NoError(t, os.WriteFile(p, []byte(prj), 0o644))
		paths = append(paths, p)
	}
	return paths
}

// writeArchive zips files into zipPath under prefix; extra holds literal
// entries (name -> content).
func writeArchive(t *testing.T, zipPath, prefix string, files []string, extra map[string]string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(zipPath), 0o755))
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)

	for _, p := range files {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		w, err := zw.Create(prefix + filepath.Base(p))
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	for name, content := range extra {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func points(n int) []record {
	recs := make([]record, n)
	for i := range recs {
		recs[i] = record{
			shape: &shp.Point{X: 500000 + float64(i), Y: 250000 + float64(i)},
			attrs: []string{fmt.Sprintf("obiekt %d", i), fmt.Sprint(i)},
		}
	}
	return recs
}

func squares(n int) []record {
	recs := make([]record, n)
	for i := range recs {
		x := float64(i * 100)
		pl := shp.NewPolyLine([][]shp.Point{{
			{X: x, Y: 0}, {X: x, Y: 10}, {X: x + 10, Y: 10}, {X: x + 10, Y: 0}, {X: x, Y: 0},
		}})
		poly := shp.Polygon(*pl)
		recs[i] = record{
			shape: &poly,
			attrs: []string{fmt.Sprintf("obszar %d", i), fmt.Sprint(i)},
		}
	}
	return recs
}

var testFields = []shp.Field{
	shp.StringField("NAZWA", 60),
	shp.NumberField("NR", 10),
}

// pointArchive writes an archive holding one point member set with n features.
func pointArchive(t *testing.T, zipPath, register string, n, id int) {
	t.Helper()
	dir := t.TempDir()
	files := writeShapefile(t, dir, memberName(register, "point", id), shp.POINT, testFields, points(n), wgs84PRJ)
	writeArchive(t, zipPath, "", files, nil)
}

// areaArchive writes an archive holding one area member set with n features.
func areaArchive(t *testing.T, zipPath, register string, n, id int) {
	t.Helper()
	dir := t.TempDir()
	files := writeShapefile(t, dir, memberName(register, "area", id), shp.POLYGON, testFields, squares(n), wgs84PRJ)
	writeArchive(t, zipPath, "", files, nil)
}
