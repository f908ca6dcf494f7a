package converter

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nid2geo/internal/feature"
	"github.com/sells-group/nid2geo/internal/geoparquet"
	"github.com/sells-group/nid2geo/internal/gpkg"
)

// Format is an output format.
type Format string

const (
	// FormatGPKG writes one GeoPackage per register type, one layer per kind.
	FormatGPKG Format = "gpkg"
	// FormatParquet writes one GeoParquet file per register type and kind.
	FormatParquet Format = "parquet"
)

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatGPKG, FormatParquet:
		return f, nil
	}
	return "", eris.Wrapf(ErrUnsupportedFormat, "%q (want %s or %s)", s, FormatGPKG, FormatParquet)
}

// LayerName is the dataset name for a register type and geometry kind.
func LayerName(registerType string, kind feature.Kind) string {
	return fmt.Sprintf("%s_%s", registerType, kind)
}

// Write merges the collections of each geometry kind and writes them to
// outdir. Parquet produces <register>_<kind>.parquet per kind; GeoPackage
// produces <register>.gpkg with one layer per kind, created on the first
// layer and appended to afterwards. Kinds without collections are skipped.
// Returns the paths written, in kind order.
func Write(ctx context.Context, registerType string, groups map[feature.Kind][]*feature.Collection, outdir string, format Format) ([]string, error) {
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("component", "converter.write"),
		zap.String("register", registerType),
	)

	var (
		written []string
		pkg     *gpkg.Package
	)
	defer func() {
		if pkg != nil {
			_ = pkg.Close()
		}
	}()

	for _, kind := range orderedKinds(groups) {
		parts := groups[kind]
		if len(parts) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return written, eris.Wrap(err, "converter: write cancelled")
		}

		combined := feature.Concat(parts)
		combined.Normalize()
		name := LayerName(registerType, kind)

		switch format {
		case FormatParquet:
			path := filepath.Join(outdir, name+".parquet")
			if err := geoparquet.WriteFile(path, combined); err != nil {
				return written, eris.Wrapf(err, "converter: write %s", path)
			}
			log.Info("parquet written", zap.String("path", path), zap.Int("rows", combined.Len()))
			written = append(written, path)

		case FormatGPKG:
			path := filepath.Join(outdir, registerType+".gpkg")
			if pkg == nil {
				var err error
				if pkg, err = gpkg.Open(ctx, path); err != nil {
					return written, eris.Wrapf(err, "converter: open %s", path)
				}
			}
			if err := pkg.WriteLayer(ctx, name, combined); err != nil {
				return written, eris.Wrapf(err, "converter: write layer %s", name)
			}
			log.Info("layer written", zap.String("path", path), zap.String("layer", name), zap.Int("rows", combined.Len()))
			if len(written) == 0 || written[len(written)-1] != path {
				written = append(written, path)
			}
		}
	}

	if pkg != nil {
		err := pkg.Close()
		pkg = nil
		if err != nil {
			return written, eris.Wrap(err, "converter: close geopackage")
		}
	}
	return written, nil
}

// orderedKinds returns the kinds present in groups: known kinds first in
// their fixed order, then any others by name.
func orderedKinds(groups map[feature.Kind][]*feature.Collection) []feature.Kind {
	kinds := make([]feature.Kind, 0, len(groups))
	known := make(map[feature.Kind]bool, len(feature.Kinds))
	for _, k := range feature.Kinds {
		known[k] = true
		if _, ok := groups[k]; ok {
			kinds = append(kinds, k)
		}
	}
	var extra []feature.Kind
	for k := range groups {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	return append(kinds, extra...)
}
