package converter

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/nid2geo/internal/feature"
)

// DefaultWorkers is the number of archives extracted concurrently.
const DefaultWorkers = 4

// Progress is called by the coordinating goroutine after each archive.
type Progress func(done, total int, archive string)

// Processor runs an extractor over every archive of a register-type directory.
type Processor struct {
	Extractor ArchiveExtractor
	Workers   int
	Progress  Progress
}

// NewProcessor returns a Processor with the default pool size.
func NewProcessor(x ArchiveExtractor) *Processor {
	return &Processor{Extractor: x, Workers: DefaultWorkers}
}

// archiveOutcome is what a worker hands back to the coordinator.
type archiveOutcome struct {
	index   int
	archive string
	results []Result
	err     error
}

// ProcessDirectory extracts every ZIP archive directly under subdir and
// groups the loaded collections by geometry kind. Collections appear in
// archive name order whatever order the workers finish in, so the merged
// schema is reproducible. A failed archive contributes nothing; only
// listing errors and cancellation are returned.
func (p *Processor) ProcessDirectory(ctx context.Context, subdir, registerType string) (map[feature.Kind][]*feature.Collection, error) {
	log := zap.L().With(
		zap.String("component", "converter.process"),
		zap.String("register", registerType),
	)

	archives, err := ListArchives(subdir)
	if err != nil {
		return nil, err
	}

	workers := p.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	var g errgroup.Group
	g.SetLimit(workers)

	outcomes := make(chan archiveOutcome)
	go func() {
		for i, a := range archives {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				o := p.extract(ctx, a, registerType)
				o.index = i
				outcomes <- o
				return nil
			})
		}
		_ = g.Wait()
		close(outcomes)
	}()

	loaded := make([][]Result, len(archives))
	done := 0
	for o := range outcomes {
		done++
		if o.err != nil {
			log.Error("archive failed, skipping", zap.String("archive", o.archive), zap.Error(o.err))
		}
		loaded[o.index] = o.results
		if p.Progress != nil {
			p.Progress(done, len(archives), o.archive)
		}
	}

	aggregated := make(map[feature.Kind][]*feature.Collection)
	for _, results := range loaded {
		for _, r := range results {
			aggregated[r.Kind] = append(aggregated[r.Kind], r.Collection)
		}
	}

	if err := ctx.Err(); err != nil {
		return aggregated, eris.Wrap(err, "converter: process directory")
	}

	log.Info("directory processed",
		zap.Int("archives", len(archives)),
		zap.Int("kinds", len(aggregated)),
	)
	return aggregated, nil
}

// extract runs the extractor for one archive. Errors and panics become an
// empty contribution.
func (p *Processor) extract(ctx context.Context, archive, registerType string) (out archiveOutcome) {
	out.archive = archive
	defer func() {
		if r := recover(); r != nil {
			out.results = nil
			out.err = eris.Errorf("converter: panic extracting %s: %v", archive, r)
		}
	}()

	results, err := p.Extractor.Extract(ctx, archive, registerType)
	if err != nil {
		out.err = err
		return out
	}
	out.results = results
	return out
}

// ListArchives returns the ZIP files directly under dir in name order.
func ListArchives(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "converter: read directory %s", dir)
	}

	var archives []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".zip") {
			continue
		}
		archives = append(archives, filepath.Join(dir, e.Name()))
	}
	return archives, nil
}
