package nid

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/nid2geo/internal/fetcher"
	"github.com/sells-group/nid2geo/internal/resilience"
)

const (
	hashA = "0123456789ABCDEF0123456789ABCDEF"
	hashB = "FEDCBA9876543210FEDCBA9876543210"
)

func testGetter() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout: 5 * time.Second,
		Retry: resilience.RetryPolicy{
			Attempts:       2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
		},
	})
}

func featureInfo(links ...string) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0"?><FeatureInfoResponse>`)
	for _, l := range links {
		fmt.Fprintf(&sb, `<FIELDS link="https://mapy.zabytek.gov.pl%s"/>`, l)
	}
	sb.WriteString(`</FeatureInfoResponse>`)
	return sb.String()
}

func TestFeatureInfoURL_SwapsAxes(t *testing.T) {
	c := NewClient(nil, "https://wms.example/get", "https://dl.example/dane/", "sess")
	u := c.FeatureInfoURL(345000.5, 510000)

	assert.True(t, strings.HasPrefix(u, "https://wms.example/get?sid=sess&"))
	assert.Contains(t, u, "REQUEST=GetFeatureInfo")
	assert.Contains(t, u, "CRS=EPSG:2180")
	assert.True(t, strings.HasSuffix(u, "&BBOX=509950,344950.5,510050,345050.5"), u)
}

func TestCapabilitiesURL(t *testing.T) {
	c := NewClient(nil, "https://wms.example/get", "", "a b")
	assert.Equal(t, "https://wms.example/get?REQUEST=GetCapabilities&VERSION=1.3.0&SERVICE=WMS&sid=a+b", c.CapabilitiesURL())
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GetCapabilities", r.URL.Query().Get("REQUEST"))
		if r.URL.Query().Get("sid") != "good" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("<WMS_Capabilities/>"))
	}))
	defer srv.Close()

	status, err := NewClient(testGetter(), srv.URL, "", "good").Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	status, err = NewClient(testGetter(), srv.URL, "", "stale").Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestProbe_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewClient(testGetter(), srv.URL, "", "x").Probe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nid: get capabilities")
}

func TestArchivesAt_DeduplicatesAndMaps(t *testing.T) {
	body := featureInfo(
		"/dane/ZRU/"+hashA+".zip",
		"/dane/ZRU/"+hashA+".zip",
		"/dane/ZNR/"+hashB+".zip",
		"/dane/zru/"+hashA+".zip", // lowercase register is not a link
		"/dane/ZRU/"+strings.ToLower(hashB)+".zip",
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GetFeatureInfo", r.URL.Query().Get("REQUEST"))
		assert.Equal(t, "509950,344950,510050,345050", r.URL.Query().Get("BBOX"))
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c := NewClient(testGetter(), srv.URL, "https://mapy.zabytek.gov.pl/dane", "s")
	got, err := c.ArchivesAt(context.Background(), Unit{Code: "0201011", X: 345000, Y: 510000})
	require.NoError(t, err)
	assert.Equal(t, []Archive{
		{Unit: "0201011", RegisterType: "ZRU", URL: "https://mapy.zabytek.gov.pl/dane/ZRU/" + hashA + ".zip"},
		{Unit: "0201011", RegisterType: "ZNR", URL: "https://mapy.zabytek.gov.pl/dane/ZNR/" + hashB + ".zip"},
	}, got)
}

func TestArchivesAt_Non200IsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	got, err := NewClient(testGetter(), srv.URL, "", "s").ArchivesAt(context.Background(), Unit{Code: "1"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDiscover_SkipsFailedUnits(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Query().Get("BBOX") {
		case "950,950,1050,1050":
			w.Write([]byte(featureInfo("/dane/ZRU/" + hashA + ".zip")))
		case "1950,1950,2050,2050":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.Write([]byte(featureInfo("/dane/ZAB/" + hashB + ".zip")))
		}
	}))
	defer srv.Close()

	units := []Unit{
		{Code: "A", X: 1000, Y: 1000},
		{Code: "B", X: 2000, Y: 2000},
		{Code: "C", X: 3000, Y: 3000},
	}
	var seen []string
	c := NewClient(testGetter(), srv.URL, "https://dl/dane", "s")
	got, err := c.Discover(context.Background(), units, func(done, total int, unit string) {
		assert.Equal(t, 3, total)
		seen = append(seen, unit)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, seen)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Unit)
	assert.Equal(t, "https://dl/dane/ZRU/"+hashA+".zip", got[0].URL)
	assert.Equal(t, "C", got[1].Unit)
	assert.Equal(t, "ZAB", got[1].RegisterType)
	// B is retried once, then given up
	assert.Equal(t, int32(4), calls.Load())
}

func TestDiscover_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(testGetter(), "http://127.0.0.1:1", "", "s").Discover(ctx, []Unit{{Code: "A"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
}
