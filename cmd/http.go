package main

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/nid2geo/internal/config"
	"github.com/sells-group/nid2geo/internal/fetcher"
	"github.com/sells-group/nid2geo/internal/nid"
	"github.com/sells-group/nid2geo/internal/resilience"
)

// newFetcher builds the HTTP fetcher from the http config section.
func newFetcher(c *config.Config) *fetcher.HTTPFetcher {
	retry := resilience.DefaultRetryPolicy()
	retry.Attempts = c.HTTP.Retries
	if c.HTTP.InitialBackoffMs > 0 {
		retry.InitialBackoff = time.Duration(c.HTTP.InitialBackoffMs) * time.Millisecond
	}

	limiters := fetcher.DefaultRateLimiters()
	if c.HTTP.WMSRate > 0 {
		limiters[fetcher.HostWMS] = fetcher.NewAdaptiveLimiter(rate.Limit(c.HTTP.WMSRate), burst(c.HTTP.WMSRate))
	}
	if c.HTTP.DownloadRate > 0 {
		limiters[fetcher.HostArchives] = fetcher.NewAdaptiveLimiter(rate.Limit(c.HTTP.DownloadRate), burst(c.HTTP.DownloadRate))
	}

	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    c.HTTP.UserAgent,
		Timeout:      time.Duration(c.HTTP.TimeoutSecs) * time.Second,
		Retry:        retry,
		RateLimiters: limiters,
	})
}

func burst(r float64) int {
	return max(1, int(r))
}

// newClient builds an NID client, preferring a --session flag value over
// the configured session id.
func newClient(c *config.Config, session string) *nid.Client {
	if session == "" {
		session = c.NID.SessionID
	}
	return nid.NewClient(newFetcher(c), c.NID.WMSURL, c.NID.DownloadURL, session)
}
