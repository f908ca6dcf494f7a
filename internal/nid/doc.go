// Package nid talks to the National Heritage Institute (NID) services. It
// checks the WMS session, discovers the per-unit archive links through
// GetFeatureInfo, reads and writes the tab-separated lists that connect
// discovery to downloads, and downloads the archives into one directory
// per register type.
package nid
