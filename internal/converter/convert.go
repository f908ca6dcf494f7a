package converter

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Options configures a conversion run.
type Options struct {
	InDir   string // contains one subdirectory of ZIP archives per register type
	OutDir  string
	Format  string // gpkg or parquet
	TempDir string // parent for scratch directories (default: os.TempDir)
	Workers int    // archives extracted concurrently (default 4)
}

// Summary reports what a run produced.
type Summary struct {
	RunID     string
	Registers []string
	Written   []string
}

// Convert processes every register-type subdirectory of opts.InDir in name
// order and writes one dataset per register type and geometry kind. The
// format is validated before anything is read or written.
func Convert(ctx context.Context, opts Options) (*Summary, error) {
	format, err := ParseFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	summary := &Summary{RunID: uuid.New().String()}
	log := zap.L().With(
		zap.String("component", "converter"),
		zap.String("run_id", summary.RunID),
	)

	entries, err := os.ReadDir(opts.InDir)
	if err != nil {
		return nil, eris.Wrapf(err, "converter: read input directory %s", opts.InDir)
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "converter: create output directory %s", opts.OutDir)
	}

	extractor := NewExtractor(opts.TempDir)

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		registerType := e.Name()
		subdir := filepath.Join(opts.InDir, registerType)
		log.Info("processing register directory", zap.String("register", registerType))

		proc := NewProcessor(extractor)
		if opts.Workers > 0 {
			proc.Workers = opts.Workers
		}
		proc.Progress = func(done, total int, archive string) {
			log.Info("archive processed",
				zap.String("register", registerType),
				zap.String("archive", filepath.Base(archive)),
				zap.Int("done", done),
				zap.Int("total", total),
			)
		}

		groups, err := proc.ProcessDirectory(ctx, subdir, registerType)
		if err != nil {
			return summary, eris.Wrapf(err, "converter: process %s", registerType)
		}

		written, err := Write(ctx, registerType, groups, opts.OutDir, format)
		summary.Written = append(summary.Written, written...)
		if err != nil {
			return summary, err
		}
		summary.Registers = append(summary.Registers, registerType)
	}

	log.Info("conversion complete",
		zap.Int("registers", len(summary.Registers)),
		zap.Int("files", len(summary.Written)),
	)
	return summary, nil
}
