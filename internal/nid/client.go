package nid

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// archivePattern matches archive links in GetFeatureInfo responses:
// register code and content hash.
var archivePattern = regexp.MustCompile(`/dane/([A-Z]{3})/([A-F0-9]{32})\.zip`)

// halfExtent is half the side of the query square around a unit point, in
// EPSG:2180 metres.
const halfExtent = 50

// Getter performs an HTTP GET. *fetcher.HTTPFetcher satisfies it.
type Getter interface {
	Get(ctx context.Context, rawURL string) (*http.Response, error)
}

// Unit is one administrative unit with a point inside it.
type Unit struct {
	Code string // JPT_KOD_JE
	X, Y float64
}

// Archive is one downloadable register archive of a unit.
type Archive struct {
	Unit         string // JPT_KOD_JE
	RegisterType string // three-letter register code, e.g. ZRU
	URL          string
}

// Client queries the NID WMS service.
type Client struct {
	http        Getter
	wmsURL      string
	downloadURL string
	sessionID   string
}

// NewClient creates a client. wmsURL is the service endpoint without query,
// downloadURL the base the archive paths are resolved against.
func NewClient(g Getter, wmsURL, downloadURL, sessionID string) *Client {
	return &Client{
		http:        g,
		wmsURL:      wmsURL,
		downloadURL: strings.TrimRight(downloadURL, "/"),
		sessionID:   sessionID,
	}
}

// CapabilitiesURL is the GetCapabilities request used to check the session.
func (c *Client) CapabilitiesURL() string {
	return c.wmsURL + "?REQUEST=GetCapabilities&VERSION=1.3.0&SERVICE=WMS&sid=" + url.QueryEscape(c.sessionID)
}

// FeatureInfoURL is the GetFeatureInfo request for a 100 m square centred
// on (x, y). The service expects the EPSG:2180 axes swapped, so the box is
// sent as miny,minx,maxy,maxx.
func (c *Client) FeatureInfoURL(x, y float64) string {
	bbox := strings.Join([]string{
		formatCoord(y - halfExtent),
		formatCoord(x - halfExtent),
		formatCoord(y + halfExtent),
		formatCoord(x + halfExtent),
	}, ",")
	return c.wmsURL + "?sid=" + url.QueryEscape(c.sessionID) +
		"&VERSION=1.3.0&SERVICE=WMS&REQUEST=GetFeatureInfo&INFO_FORMAT=text/xml" +
		"&LAYERS=Dane_do_pobrania&QUERY_LAYERS=Dane_do_pobrania&FORMAT=image/png" +
		"&CRS=EPSG:2180&WIDTH=100&HEIGHT=100&I=50&J=50&styles=&BBOX=" + bbox
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Probe checks that the WMS answers GetCapabilities for the session. It
// returns the HTTP status; anything but 200 usually means a stale session.
func (c *Client) Probe(ctx context.Context) (int, error) {
	resp, err := c.http.Get(ctx, c.CapabilitiesURL())
	if err != nil {
		return 0, eris.Wrap(err, "nid: get capabilities")
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		zap.L().Warn("nid: wms rejected session",
			zap.Int("status", resp.StatusCode),
			zap.String("hint", "session id is probably stale"),
		)
	}
	return resp.StatusCode, nil
}

// ArchivesAt returns the archives listed for a unit, deduplicated and in
// order of first appearance. A non-200 answer yields no archives.
func (c *Client) ArchivesAt(ctx context.Context, u Unit) ([]Archive, error) {
	resp, err := c.http.Get(ctx, c.FeatureInfoURL(u.X, u.Y))
	if err != nil {
		return nil, eris.Wrapf(err, "nid: get feature info for %s", u.Code)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		zap.L().Debug("nid: feature info not available",
			zap.String("unit", u.Code),
			zap.Int("status", resp.StatusCode),
		)
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "nid: read feature info for %s", u.Code)
	}
	return c.parseArchives(u.Code, string(body)), nil
}

func (c *Client) parseArchives(unit, body string) []Archive {
	seen := make(map[string]bool)
	var out []Archive
	for _, m := range archivePattern.FindAllStringSubmatch(body, -1) {
		register, hash := m[1], m[2]
		key := register + "/" + hash
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Archive{
			Unit:         unit,
			RegisterType: register,
			URL:          c.downloadURL + "/" + key + ".zip",
		})
	}
	return out
}

// Progress reports discovery progress after each unit.
type Progress func(done, total int, unit string)

// Discover queries every unit in turn and returns all archives found. A
// unit whose request fails is logged and skipped; only cancellation of
// ctx stops the run.
func (c *Client) Discover(ctx context.Context, units []Unit, progress Progress) ([]Archive, error) {
	log := zap.L().With(zap.String("component", "nid.discover"))

	var out []Archive
	failed := 0
	for i, u := range units {
		if err := ctx.Err(); err != nil {
			return out, eris.Wrap(err, "nid: discovery cancelled")
		}

		archives, err := c.ArchivesAt(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return out, eris.Wrap(ctx.Err(), "nid: discovery cancelled")
			}
			failed++
			log.Error("unit query failed", zap.String("unit", u.Code), zap.Error(err))
		}
		out = append(out, archives...)

		if progress != nil {
			progress(i+1, len(units), u.Code)
		}
	}

	log.Info("discovery complete",
		zap.Int("units", len(units)),
		zap.Int("failed", failed),
		zap.Int("archives", len(out)),
	)
	return out, nil
}
