// Package reload asks the service owning the patched document to pick up the
// new configuration by restarting it through a Docker-compatible control API
// (typically a socket proxy).
package reload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("blocklist/reload")

type NotifierConfig struct {
	client        *http.Client
	timeout       time.Duration
	userAgent     string
	modifyRequest func(r *http.Request) error
}

type NotifierOption func(*NotifierConfig) error

// WithHTTPClient sets the client used to reach the control endpoint.
func WithHTTPClient(c *http.Client) NotifierOption {
	return func(config *NotifierConfig) error {
		config.client = c
		return nil
	}
}

// WithTimeout bounds a single restart call.
func WithTimeout(d time.Duration) NotifierOption {
	return func(config *NotifierConfig) error {
		if d <= 0 {
			return fmt.Errorf("reload timeout must be positive, got %s", d)
		}
		config.timeout = d
		return nil
	}
}

// WithUserAgent sets the User-Agent sent to the control endpoint.
func WithUserAgent(userAgent string) NotifierOption {
	return func(config *NotifierConfig) error {
		config.userAgent = userAgent
		return nil
	}
}

// WithModifiedRequest enables modifying the restart request, such as to add
// authentication headers for the proxy.
func WithModifiedRequest(fn func(req *http.Request) error) NotifierOption {
	return func(config *NotifierConfig) error {
		config.modifyRequest = fn
		return nil
	}
}

// Notifier restarts a container through the control API.
type Notifier struct {
	baseURL       string
	client        *http.Client
	userAgent     string
	modifyRequest func(r *http.Request) error
}

// NewNotifier returns a Notifier talking to the control API at baseURL.
func NewNotifier(baseURL string, opts ...NotifierOption) (*Notifier, error) {
	cfg := &NotifierConfig{timeout: 30 * time.Second}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}

	return &Notifier{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		client:        client,
		userAgent:     cfg.userAgent,
		modifyRequest: cfg.modifyRequest,
	}, nil
}

// URL returns the restart endpoint for service.
func (n *Notifier) URL(service string) string {
	return fmt.Sprintf("%s/containers/%s/restart", n.baseURL, url.PathEscape(service))
}

// Reload restarts service. Only 204 No Content counts as success; any other
// status or a transport failure is returned as an error. The document patch
// that preceded the call is never undone.
func (n *Notifier) Reload(ctx context.Context, service string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL(service), nil)
	if err != nil {
		return err
	}
	if n.userAgent != "" {
		req.Header.Set("User-Agent", n.userAgent)
	}
	if n.modifyRequest != nil {
		if err := n.modifyRequest(req); err != nil {
			return err
		}
	}

	start := time.Now()
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("restart %s: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("restart %s: %s : %s", service, resp.Status, strings.TrimSpace(string(respBody)))
	}

	log.Infof("restarted %s in %s", service, time.Since(start).Round(time.Millisecond))
	return nil
}
