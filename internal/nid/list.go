package nid

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nid2geo/internal/fetcher"
)

// Column names of the unit and archive lists.
const (
	ColUnit     = "JPT_KOD_JE"
	ColX        = "XCoord"
	ColY        = "YCoord"
	ColRegister = "typ_rejestru"
	ColLink     = "link_do_pobrania"
)

var tsv = fetcher.CSVOptions{Delimiter: '\t', TrimSpace: true}

// ReadUnits reads the unit list (JPT_KOD_JE, XCoord, YCoord). Rows without
// a code or with unparsable coordinates are logged and skipped.
func ReadUnits(ctx context.Context, path string) ([]Unit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "nid: open unit list %s", path)
	}
	defer f.Close() //nolint:errcheck

	recs, err := fetcher.ReadAll(ctx, f, tsv)
	if err != nil {
		return nil, eris.Wrapf(err, "nid: read unit list %s", path)
	}

	units := make([]Unit, 0, len(recs))
	for _, r := range recs {
		u, err := parseUnit(r)
		if err != nil {
			zap.L().Warn("nid: skipping unit row",
				zap.String("path", path),
				zap.Int("line", r.Line),
				zap.Error(err),
			)
			continue
		}
		units = append(units, u)
	}
	return units, nil
}

func parseUnit(r fetcher.Record) (Unit, error) {
	code := r.Get(ColUnit)
	if code == "" {
		return Unit{}, eris.Errorf("nid: missing %s", ColUnit)
	}
	x, err := strconv.ParseFloat(strings.ReplaceAll(r.Get(ColX), ",", "."), 64)
	if err != nil {
		return Unit{}, eris.Wrapf(err, "nid: %s of %s", ColX, code)
	}
	y, err := strconv.ParseFloat(strings.ReplaceAll(r.Get(ColY), ",", "."), 64)
	if err != nil {
		return Unit{}, eris.Wrapf(err, "nid: %s of %s", ColY, code)
	}
	return Unit{Code: code, X: x, Y: y}, nil
}

// WriteArchiveList writes archives as a tab-separated list with the header
// JPT_KOD_JE, typ_rejestru, link_do_pobrania.
func WriteArchiveList(path string, archives []Archive) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "nid: create archive list %s", path)
	}

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.Write([]string{ColUnit, ColRegister, ColLink}); err != nil {
		_ = f.Close()
		return eris.Wrap(err, "nid: write header")
	}
	for _, a := range archives {
		if err := w.Write([]string{a.Unit, a.RegisterType, a.URL}); err != nil {
			_ = f.Close()
			return eris.Wrapf(err, "nid: write archive of %s", a.Unit)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return eris.Wrap(err, "nid: flush archive list")
	}
	if err := f.Close(); err != nil {
		return eris.Wrap(err, "nid: close archive list")
	}
	return nil
}

// ReadArchiveList reads a list written by WriteArchiveList. Rows missing
// any of the three columns are logged and skipped.
func ReadArchiveList(ctx context.Context, path string) ([]Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "nid: open archive list %s", path)
	}
	defer f.Close() //nolint:errcheck

	recs, err := fetcher.ReadAll(ctx, f, tsv)
	if err != nil {
		return nil, eris.Wrapf(err, "nid: read archive list %s", path)
	}

	archives := make([]Archive, 0, len(recs))
	for _, r := range recs {
		a := Archive{Unit: r.Get(ColUnit), RegisterType: r.Get(ColRegister), URL: r.Get(ColLink)}
		if a.Unit == "" || a.RegisterType == "" || a.URL == "" {
			zap.L().Warn("nid: skipping incomplete archive row",
				zap.String("path", path),
				zap.Int("line", r.Line),
			)
			continue
		}
		archives = append(archives, a)
	}
	return archives, nil
}
