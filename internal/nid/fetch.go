package nid

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nid2geo/internal/fetcher"
)

// DownloadStats summarises a DownloadArchives run.
type DownloadStats struct {
	Downloaded int
	Failed     int
	Skipped    int
	Bytes      int64
}

// ArchivePath is where an archive is stored: <outdir>/<register>/<unit>.zip.
func ArchivePath(outdir string, a Archive) string {
	return filepath.Join(outdir, a.RegisterType, a.Unit+".zip")
}

// DownloadArchives downloads each archive in list order to ArchivePath. A
// failed download is logged and counted and the run continues; only
// cancellation of ctx returns an error. Rows whose register or unit would
// escape outdir are skipped. A unit with two archives of one register keeps
// the last one, as both map to the same file.
func DownloadArchives(ctx context.Context, f fetcher.Fetcher, archives []Archive, outdir string) (DownloadStats, error) {
	log := zap.L().With(zap.String("component", "nid.fetch"))
	var stats DownloadStats

	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return stats, eris.Wrapf(err, "nid: create %s", outdir)
	}

	written := make(map[string]bool)
	for i, a := range archives {
		if err := ctx.Err(); err != nil {
			return stats, eris.Wrap(err, "nid: download cancelled")
		}

		if !safeName(a.RegisterType) || !safeName(a.Unit) {
			stats.Skipped++
			log.Warn("skipping archive with unsafe name",
				zap.String("unit", a.Unit),
				zap.String("register", a.RegisterType),
			)
			continue
		}

		path := ArchivePath(outdir, a)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return stats, eris.Wrapf(err, "nid: create %s", filepath.Dir(path))
		}
		if written[path] {
			log.Warn("archive overwrites an earlier one of the same unit",
				zap.String("path", path),
				zap.String("url", a.URL),
			)
		}

		n, err := f.DownloadToFile(ctx, a.URL, path)
		if err != nil {
			if ctx.Err() != nil {
				return stats, eris.Wrap(ctx.Err(), "nid: download cancelled")
			}
			stats.Failed++
			var se *fetcher.StatusError
			if errors.As(err, &se) {
				log.Error("download failed", zap.String("url", a.URL), zap.Int("status", se.StatusCode))
			} else {
				log.Error("download failed", zap.String("url", a.URL), zap.Error(err))
			}
			continue
		}

		written[path] = true
		stats.Downloaded++
		stats.Bytes += n
		log.Debug("archive downloaded",
			zap.String("path", path),
			zap.Int64("bytes", n),
			zap.Int("done", i+1),
			zap.Int("total", len(archives)),
		)
	}

	log.Info("downloads complete",
		zap.String("outdir", outdir),
		zap.Int("downloaded", stats.Downloaded),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

func safeName(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}
