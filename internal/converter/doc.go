// Package converter turns directories of NID ZIP archives into GeoPackage or
// GeoParquet datasets. Archives are extracted and loaded in parallel, one
// worker pool per register-type directory, and the resulting feature
// collections are merged per geometry kind before being written.
package converter
