package converter

import (
	"archive/zip"
	"context"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nid2geo/internal/crs"
	"github.com/sells-group/nid2geo/internal/feature"
	"github.com/sells-group/nid2geo/internal/fetcher"
)

// memberPattern finds NID shapefile names, e.g.
// zabytki_nieruchome_area_0123456789ABCDEF0123456789ABCDEF.shp. It is not
// anchored at the start and the word fields accept any Unicode letter, so
// "rejestr zabytków_x_point_<hash>.shp" matches on its trailing part.
var memberPattern = regexp.MustCompile(`(?i)([\p{L}\p{M}\p{N}_]+)_([\p{L}\p{M}\p{N}_]+)_(point|line|area)_[A-F0-9]{32}\.shp$`)

// sidecarExts are the member files extracted for each shapefile.
var sidecarExts = []string{".shp", ".shx", ".dbf", ".prj"}

// Result is one shapefile member set loaded from an archive.
type Result struct {
	Kind       feature.Kind
	Member     string
	Collection *feature.Collection
}

// ArchiveExtractor loads the shapefile member sets of a single archive.
type ArchiveExtractor interface {
	Extract(ctx context.Context, archivePath, registerType string) ([]Result, error)
}

// Extractor loads NID shapefiles out of ZIP archives.
type Extractor struct {
	// TempDir is the parent of the scratch directories; empty means os.TempDir.
	TempDir string
	// SRID is forced onto every loaded collection.
	SRID int
}

// NewExtractor returns an Extractor that tags data as EPSG:2180.
func NewExtractor(tempDir string) *Extractor {
	return &Extractor{TempDir: tempDir, SRID: crs.SRIDPoland}
}

// Extract loads every NID shapefile member set found in the archive.
// An unreadable archive returns an *ExtractionError; failures of single
// member sets are logged and the member set is left out. An archive with no
// matching shapefiles yields no results and no error.
func (x *Extractor) Extract(ctx context.Context, archivePath, registerType string) ([]Result, error) {
	log := zap.L().With(
		zap.String("component", "converter.extract"),
		zap.String("archive", archivePath),
		zap.String("register", registerType),
	)

	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, &ExtractionError{Kind: ArchiveUnreadable, Archive: archivePath, Err: err}
	}
	defer r.Close() //nolint:errcheck

	entries := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		entries[strings.ToLower(f.Name)] = f
	}

	scratch := ""
	defer func() {
		if scratch != "" {
			if err := os.RemoveAll(scratch); err != nil {
				log.Warn("remove scratch dir", zap.String("dir", scratch), zap.Error(err))
			}
		}
	}()

	var results []Result
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return results, eris.Wrap(err, "converter: extract cancelled")
		}
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".shp") {
			continue
		}
		m := memberPattern.FindStringSubmatch(path.Base(f.Name))
		if m == nil {
			continue
		}
		kind, _ := feature.ParseKind(m[3])

		if scratch == "" {
			scratch, err = os.MkdirTemp(x.TempDir, "nid2geo-"+filepath.Base(archivePath)+"-")
			if err != nil {
				return results, &ExtractionError{Kind: MemberExtract, Archive: archivePath, Member: f.Name, Err: err}
			}
		}

		c, err := x.loadMember(entries, f.Name, filepath.Join(scratch, string(kind)))
		if err != nil {
			log.Error("skipping shapefile", zap.String("member", f.Name), zap.Error(err))
			continue
		}
		c.SetSRID(x.SRID)
		results = append(results, Result{Kind: kind, Member: f.Name, Collection: c})
	}

	return results, nil
}

// loadMember extracts the sidecars of one shapefile into dir and loads it,
// first as UTF-8 and then as repaired Windows-1250.
func (x *Extractor) loadMember(entries map[string]*zip.File, member, dir string) (*feature.Collection, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &ExtractionError{Kind: MemberExtract, Member: member, Err: err}
	}

	stem := member[:len(member)-len(".shp")]
	base := path.Base(stem)
	for _, ext := range sidecarExts {
		f, ok := entries[strings.ToLower(stem+ext)]
		if !ok {
			zap.L().Debug("converter: sidecar missing",
				zap.String("kind", string(MemberSetIncomplete)),
				zap.String("member", member),
				zap.String("ext", ext),
			)
			continue
		}
		extracted, err := fetcher.ExtractZIPEntry(f, dir)
		if err != nil {
			return nil, &ExtractionError{Kind: MemberExtract, Member: member, Err: err}
		}
		// Flatten subfolders and lower-case the extension so the reader
		// finds every sidecar next to the .shp.
		if want := filepath.Join(dir, base+ext); extracted != want {
			if err := os.Rename(extracted, want); err != nil {
				return nil, &ExtractionError{Kind: MemberExtract, Member: member, Err: err}
			}
		}
	}

	shpPath := filepath.Join(dir, base+".shp")
	c, err := loadShapefile(shpPath, utf8Codec{})
	if err == nil {
		return c, nil
	}
	if !eris.Is(err, errInvalidText) {
		return nil, &ExtractionError{Kind: LoadFailure, Member: member, Err: err}
	}

	zap.L().Debug("converter: attribute table is not UTF-8, retrying as windows-1250",
		zap.String("member", member),
	)
	c, err = loadShapefile(shpPath, newCP1250Codec())
	if err != nil {
		return nil, &ExtractionError{Kind: EncodingFailure, Member: member, Err: err}
	}
	return c, nil
}
