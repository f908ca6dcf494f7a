// Package crs holds the coordinate reference system definitions written into
// GeoPackage and GeoParquet outputs.
package crs

// CRS describes one EPSG coordinate reference system.
type CRS struct {
	SRID        int
	Name        string
	Description string
	WKT         string // OGC WKT1, as stored in gpkg_spatial_ref_sys
	PROJJSON    string // as stored in GeoParquet "geo" metadata
}

// EPSG codes used by the converter.
const (
	SRIDPoland = 2180
	SRIDWGS84  = 4326
)

// Poland is ETRS89 / Poland CS92, the projection every NID shapefile is read in.
var Poland = CRS{
	SRID:        SRIDPoland,
	Name:        "ETRS89 / Poland CS92",
	Description: "Poland - onshore and offshore",
	WKT: `PROJCS["ETRS89 / Poland CS92",GEOGCS["ETRS89",DATUM["European_Terrestrial_Reference_System_1989",` +
		`SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],TOWGS84[0,0,0,0,0,0,0],` +
		`AUTHORITY["EPSG","6258"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],` +
		`UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4258"]],` +
		`PROJECTION["Transverse_Mercator"],PARAMETER["latitude_of_origin",0],PARAMETER["central_meridian",19],` +
		`PARAMETER["scale_factor",0.9993],PARAMETER["false_easting",500000],PARAMETER["false_northing",-5300000],` +
		`UNIT["metre",1,AUTHORITY["EPSG","9001"]],AUTHORITY["EPSG","2180"]]`,
	PROJJSON: `{"$schema":"https://proj.org/schemas/v0.7/projjson.schema.json","type":"ProjectedCRS",` +
		`"name":"ETRS89 / Poland CS92","base_crs":{"name":"ETRS89","datum":{"type":"GeodeticReferenceFrame",` +
		`"name":"European Terrestrial Reference System 1989","ellipsoid":{"name":"GRS 1980",` +
		`"semi_major_axis":6378137,"inverse_flattening":298.257222101}},"coordinate_system":{"subtype":"ellipsoidal",` +
		`"axis":[{"name":"Geodetic latitude","abbreviation":"Lat","direction":"north","unit":"degree"},` +
		`{"name":"Geodetic longitude","abbreviation":"Lon","direction":"east","unit":"degree"}]},` +
		`"id":{"authority":"EPSG","code":4258}},"conversion":{"name":"Poland CS92","method":{"name":"Transverse Mercator",` +
		`"id":{"authority":"EPSG","code":9807}},"parameters":[` +
		`{"name":"Latitude of natural origin","value":0,"unit":"degree","id":{"authority":"EPSG","code":8801}},` +
		`{"name":"Longitude of natural origin","value":19,"unit":"degree","id":{"authority":"EPSG","code":8802}},` +
		`{"name":"Scale factor at natural origin","value":0.9993,"unit":"unity","id":{"authority":"EPSG","code":8805}},` +
		`{"name":"False easting","value":500000,"unit":"metre","id":{"authority":"EPSG","code":8806}},` +
		`{"name":"False northing","value":-5300000,"unit":"metre","id":{"authority":"EPSG","code":8807}}]},` +
		`"coordinate_system":{"subtype":"Cartesian","axis":[` +
		`{"name":"Northing","abbreviation":"x","direction":"north","unit":"metre"},` +
		`{"name":"Easting","abbreviation":"y","direction":"east","unit":"metre"}]},` +
		`"id":{"authority":"EPSG","code":2180}}`,
}

// WGS84 is required in every GeoPackage's spatial reference table.
var WGS84 = CRS{
	SRID:        SRIDWGS84,
	Name:        "WGS 84 geodetic",
	Description: "longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid",
	WKT: `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],` +
		`AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],` +
		`UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`,
}

var known = map[int]CRS{
	SRIDPoland: Poland,
	SRIDWGS84:  WGS84,
}

// Lookup returns the definition for an EPSG code.
func Lookup(srid int) (CRS, bool) {
	c, ok := known[srid]
	return c, ok
}
