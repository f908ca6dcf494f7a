// Package gpkg writes feature collections as layers of an OGC GeoPackage,
// using modernc.org/sqlite as the container.
package gpkg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/nid2geo/internal/crs"
	"github.com/sells-group/nid2geo/internal/feature"
)

const (
	// ApplicationID is "GPKG" as a big-endian int32.
	ApplicationID = 0x47504B47
	// UserVersion is GeoPackage 1.3.0.
	UserVersion = 10300

	// GeometryColumn is the name of every layer's geometry column.
	GeometryColumn = "geom"
	fidColumn      = "fid"
)

// Layer describes one feature table registered in gpkg_contents.
type Layer struct {
	Name         string
	GeometryType string
	SRID         int
	FeatureCount int64
}

// Package is an open GeoPackage file.
type Package struct {
	db   *sql.DB
	path string
}

// Open opens the GeoPackage at path, creating the file and its core tables
// if needed. Existing layers are left untouched.
func Open(ctx context.Context, path string) (*Package, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "gpkg: open %s", path)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		fmt.Sprintf("PRAGMA application_id = %d", ApplicationID),
		fmt.Sprintf("PRAGMA user_version = %d", UserVersion),
		coreSchema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "gpkg: initialise %s", path)
		}
	}

	p := &Package{db: db, path: path}
	for _, c := range []crs.CRS{crs.WGS84, crs.Poland} {
		if err := p.ensureSRS(ctx, db, c.SRID); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return p, nil
}

const coreSchema = `
CREATE TABLE IF NOT EXISTS gpkg_spatial_ref_sys (
	srs_name                 TEXT NOT NULL,
	srs_id                   INTEGER PRIMARY KEY,
	organization             TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition               TEXT NOT NULL,
	description              TEXT
);

CREATE TABLE IF NOT EXISTS gpkg_contents (
	table_name  TEXT NOT NULL PRIMARY KEY,
	data_type   TEXT NOT NULL,
	identifier  TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x       DOUBLE,
	min_y       DOUBLE,
	max_x       DOUBLE,
	max_y       DOUBLE,
	srs_id      INTEGER,
	CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);

CREATE TABLE IF NOT EXISTS gpkg_geometry_columns (
	table_name         TEXT NOT NULL,
	column_name        TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id             INTEGER NOT NULL,
	z                  TINYINT NOT NULL,
	m                  TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
	CONSTRAINT uk_gc_table_name UNIQUE (table_name),
	CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
	CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);

INSERT OR IGNORE INTO gpkg_spatial_ref_sys
	(srs_name, srs_id, organization, organization_coordsys_id, definition, description)
VALUES
	('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
	('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system');
`

// Path returns the file path of the package.
func (p *Package) Path() string {
	return p.path
}

// Close closes the underlying database.
func (p *Package) Close() error {
	return p.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ensureSRS registers srid in gpkg_spatial_ref_sys. Codes without a known
// definition are registered as undefined.
func (p *Package) ensureSRS(ctx context.Context, ex execer, srid int) error {
	c, ok := crs.Lookup(srid)
	if !ok {
		c = crs.CRS{SRID: srid, Name: fmt.Sprintf("EPSG:%d", srid), WKT: "undefined"}
	}
	_, err := ex.ExecContext(ctx,
		`INSERT OR IGNORE INTO gpkg_spatial_ref_sys
			(srs_name, srs_id, organization, organization_coordsys_id, definition, description)
		VALUES (?, ?, 'EPSG', ?, ?, ?)`,
		c.Name, c.SRID, c.SRID, c.WKT, c.Description,
	)
	return eris.Wrapf(err, "gpkg: register srs %d", srid)
}

// WriteLayer stores c as the feature table name. A layer of the same name is
// replaced; other layers are kept.
func (p *Package) WriteLayer(ctx context.Context, name string, c *feature.Collection) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "gpkg: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := dropLayer(ctx, tx, name); err != nil {
		return err
	}
	if err := p.ensureSRS(ctx, tx, c.SRID); err != nil {
		return err
	}

	geomType := layerGeometryType(c)
	columns := attributeColumns(c.Columns)

	var ddl strings.Builder
	fmt.Fprintf(&ddl, "CREATE TABLE %s (%s INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL, %s %s",
		quote(name), quote(fidColumn), quote(GeometryColumn), geomType)
	for i, col := range c.Columns {
		fmt.Fprintf(&ddl, ", %s %s", quote(columns[i]), sqlType(col.Type))
	}
	ddl.WriteString(")")
	if _, err := tx.ExecContext(ctx, ddl.String()); err != nil {
		return eris.Wrapf(err, "gpkg: create table %s", name)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)+1), ", ")
	quoted := make([]string, 0, len(columns)+1)
	quoted = append(quoted, quote(GeometryColumn))
	for _, col := range columns {
		quoted = append(quoted, quote(col))
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(name), strings.Join(quoted, ", "), placeholders))
	if err != nil {
		return eris.Wrapf(err, "gpkg: prepare insert %s", name)
	}
	defer stmt.Close() //nolint:errcheck

	args := make([]any, len(columns)+1)
	for i, r := range c.Rows {
		blob, err := EncodeGeometry(r.Geometry, c.SRID)
		if err != nil {
			return eris.Wrapf(err, "gpkg: encode row %d of %s", i, name)
		}
		args[0] = blob
		for j := range columns {
			var v any
			if j < len(r.Values) {
				v = r.Values[j]
			}
			args[j+1] = sqlValue(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "gpkg: insert row %d of %s", i, name)
		}
	}

	var minX, minY, maxX, maxY any
	if b := c.Bounds(); b != nil {
		minX, minY, maxX, maxY = b.Min(0), b.Min(1), b.Max(0), b.Max(1)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, description, last_change, min_x, min_y, max_x, max_y, srs_id)
		VALUES (?, 'features', ?, '', ?, ?, ?, ?, ?, ?)`,
		name, name, time.Now().UTC().Format("2006-01-02T15:04:05.000Z"), minX, minY, maxX, maxY, c.SRID,
	); err != nil {
		return eris.Wrapf(err, "gpkg: register contents %s", name)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m)
		VALUES (?, ?, ?, ?, 0, 0)`,
		name, GeometryColumn, geomType, c.SRID,
	); err != nil {
		return eris.Wrapf(err, "gpkg: register geometry column %s", name)
	}

	return eris.Wrapf(tx.Commit(), "gpkg: commit layer %s", name)
}

func dropLayer(ctx context.Context, tx *sql.Tx, name string) error {
	for _, q := range []string{
		`DELETE FROM gpkg_geometry_columns WHERE table_name = ?`,
		`DELETE FROM gpkg_contents WHERE table_name = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, name); err != nil {
			return eris.Wrapf(err, "gpkg: unregister layer %s", name)
		}
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(name)); err != nil {
		return eris.Wrapf(err, "gpkg: drop layer %s", name)
	}
	return nil
}

// Layers lists the feature layers with their row counts.
func (p *Package) Layers(ctx context.Context) ([]Layer, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT c.table_name, g.geometry_type_name, g.srs_id
		FROM gpkg_contents c
		JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
		WHERE c.data_type = 'features'
		ORDER BY c.table_name`)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: list layers")
	}

	var layers []Layer
	for rows.Next() {
		var l Layer
		if err := rows.Scan(&l.Name, &l.GeometryType, &l.SRID); err != nil {
			_ = rows.Close()
			return nil, eris.Wrap(err, "gpkg: scan layer")
		}
		layers = append(layers, l)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "gpkg: list layers")
	}

	for i := range layers {
		if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quote(layers[i].Name)).Scan(&layers[i].FeatureCount); err != nil {
			return nil, eris.Wrapf(err, "gpkg: count %s", layers[i].Name)
		}
	}
	return layers, nil
}

// layerGeometryType picks the gpkg_geometry_columns type name for c.
func layerGeometryType(c *feature.Collection) string {
	types := c.GeometryTypes()
	if len(types) != 1 {
		return "GEOMETRY"
	}
	return strings.ToUpper(types[0])
}

// attributeColumns returns the table column names for the attributes.
// SQLite compares column names without regard to case, so a name that
// collides case-insensitively with the fid, the geometry or an earlier
// attribute gets a numeric suffix.
func attributeColumns(cols []feature.Column) []string {
	reserved := make(map[string]bool, len(cols))
	for _, col := range cols {
		reserved[strings.ToLower(col.Name)] = true
	}
	used := map[string]bool{fidColumn: true, GeometryColumn: true}

	names := make([]string, len(cols))
	for i, col := range cols {
		name := col.Name
		if used[strings.ToLower(name)] {
			for n := 1; ; n++ {
				candidate := fmt.Sprintf("%s_%d", col.Name, n)
				lower := strings.ToLower(candidate)
				if !used[lower] && !reserved[lower] {
					name = candidate
					break
				}
			}
		}
		used[strings.ToLower(name)] = true
		names[i] = name
	}
	return names
}

func sqlType(t feature.ColumnType) string {
	switch t {
	case feature.TypeInteger:
		return "INTEGER"
	case feature.TypeReal:
		return "REAL"
	case feature.TypeBoolean:
		return "BOOLEAN"
	case feature.TypeDate:
		return "DATE"
	}
	return "TEXT"
}

func sqlValue(v any) any {
	switch x := v.(type) {
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case time.Time:
		return x.Format(time.DateOnly)
	}
	return v
}

// quote returns name as a double-quoted SQL identifier.
func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
