package country

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const maxAuthorityBytes = 10 << 20

var codePattern = regexp.MustCompile(`\b[A-Z]{2}\b`)

// AuthorityFetcher downloads a document and extracts every standalone
// two-letter upper case token from it as a country code.
type AuthorityFetcher struct {
	URL       string
	Client    *http.Client
	UserAgent string
}

// NewAuthorityFetcher returns a fetcher for url with the given request timeout.
func NewAuthorityFetcher(url string, timeout time.Duration, userAgent string) *AuthorityFetcher {
	return &AuthorityFetcher{
		URL:       url,
		Client:    &http.Client{Timeout: timeout},
		UserAgent: userAgent,
	}
}

// Fetch implements AuthorityFunc.
func (f *AuthorityFetcher) Fetch(ctx context.Context) (map[Code]struct{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch country list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch country list: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAuthorityBytes))
	if err != nil {
		return nil, fmt.Errorf("read country list: %w", err)
	}

	return ExtractCodes(body), nil
}

// ExtractCodes returns the set of two-letter upper case codes found in body.
func ExtractCodes(body []byte) map[Code]struct{} {
	codes := make(map[Code]struct{})
	for _, m := range codePattern.FindAll(body, -1) {
		codes[Code(m)] = struct{}{}
	}
	return codes
}
