package denylist

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ipshipyard/adguard-blocklist/country"
)

// maxFeedBytes caps a single country feed. The largest published lists are a
// few MiB. A larger body is a failed fetch, never a truncated list.
var maxFeedBytes int64 = 32 << 20

// FeedSource fetches per-country CIDR lists from <base>/<code>.cidr.
type FeedSource struct {
	baseURL   string
	client    *http.Client
	cache     *FeedCache
	userAgent string
}

// NewFeedSource creates a feed source. cache may be nil to disable
// conditional requests.
func NewFeedSource(baseURL string, timeout time.Duration, cache *FeedCache) *FeedSource {
	initMetrics()
	return &FeedSource{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: timeout},
		cache:     cache,
		userAgent: UserAgent(),
	}
}

// URL returns the feed URL for code.
func (fs *FeedSource) URL(code country.Code) string {
	return fs.baseURL + "/" + code.Lower() + ".cidr"
}

// Fetch returns the entries published for code. Any failure is logged and
// yields an empty list so other countries are unaffected.
func (fs *FeedSource) Fetch(ctx context.Context, code country.Code) []Entry {
	entries, err := fs.fetch(ctx, code)
	if err != nil {
		log.Warnf("feed %s: fetch failed: %v", code, err)
		incFetchFailure(code.String())
		return []Entry{}
	}
	updateEntries(code.String(), len(entries))
	updateLastUpdate(code.String(), time.Now().Unix())
	return entries
}

func (fs *FeedSource) fetch(ctx context.Context, code country.Code) ([]Entry, error) {
	url := fs.URL(code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	// Use If-Modified-Since for conditional request, but only when the body
	// it refers to is still cached.
	lastMod := fs.cache.LastModified(ctx, code)
	if lastMod != "" {
		if _, ok := fs.cache.Entries(ctx, code); ok {
			req.Header.Set("If-Modified-Since", lastMod)
		}
	}

	req.Header.Set("User-Agent", fs.userAgent)

	log.Infof("feed %s: downloading %s", code, url)
	resp, err := fs.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Handle 304 Not Modified
	if resp.StatusCode == http.StatusNotModified {
		entries, ok := fs.cache.Entries(ctx, code)
		if !ok {
			return nil, fmt.Errorf("not modified but no cached copy")
		}
		log.Infof("feed %s: not modified, reusing %d cached entries", code, len(entries))
		return entries, nil
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > maxFeedBytes {
		return nil, fmt.Errorf("feed exceeds %d bytes", maxFeedBytes)
	}

	res, err := parseList(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse body: %w", err)
	}
	if len(res.dropped) > 0 {
		log.Debugf("feed %s: dropped %d malformed lines (first: %q)", code, len(res.dropped), res.dropped[0])
		addDropped(code.String(), len(res.dropped))
	}
	log.Infof("feed %s: downloaded %d CIDR entries", code, len(res.entries))

	if err := fs.cache.Store(ctx, code, res.entries, resp.Header.Get("Last-Modified")); err != nil {
		log.Warnf("feed %s: cache write failed: %v", code, err)
	}

	if res.entries == nil {
		res.entries = []Entry{}
	}
	return res.entries, nil
}
