package converter

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrUnsupportedFormat is returned when the requested output format is unknown.
var ErrUnsupportedFormat = eris.New("converter: unsupported output format")

// ErrorKind classifies extraction failures.
type ErrorKind string

const (
	// ArchiveUnreadable means the ZIP itself could not be opened.
	ArchiveUnreadable ErrorKind = "archive_unreadable"
	// MemberSetIncomplete means a sidecar of a shapefile is missing from the archive.
	MemberSetIncomplete ErrorKind = "member_set_incomplete"
	// MemberExtract means a shapefile member could not be copied to scratch space.
	MemberExtract ErrorKind = "member_extract"
	// EncodingFailure means neither UTF-8 nor Windows-1250 could decode the attributes.
	EncodingFailure ErrorKind = "encoding_failure"
	// LoadFailure means the shapefile could not be read.
	LoadFailure ErrorKind = "load_failure"
)

// ExtractionError describes a failure while processing one archive or one
// shapefile member set inside it.
type ExtractionError struct {
	Kind    ErrorKind
	Archive string
	Member  string
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Member != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Kind, e.Archive, e.Member, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Archive, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
