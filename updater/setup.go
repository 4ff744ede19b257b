package updater

import (
	"io"

	"github.com/ipshipyard/adguard-blocklist/config"
	"github.com/ipshipyard/adguard-blocklist/country"
	"github.com/ipshipyard/adguard-blocklist/denylist"
	"github.com/ipshipyard/adguard-blocklist/reload"
)

// Setup builds an Orchestrator and its network sources from cfg. The returned
// closer releases the feed cache and must be called on shutdown.
func Setup(cfg config.Config) (*Orchestrator, io.Closer, error) {
	// Badger on disk when a cache directory is configured, memory otherwise.
	cache, err := denylist.OpenFeedCache(cfg.CacheDir)
	if err != nil {
		return nil, nil, err
	}

	userAgent := denylist.UserAgent()
	notifier, err := reload.NewNotifier(cfg.ControlURL,
		reload.WithTimeout(cfg.ReloadTimeout),
		reload.WithUserAgent(userAgent),
	)
	if err != nil {
		cache.Close()
		return nil, nil, err
	}

	authority := country.NewAuthorityFetcher(cfg.CountryListURL, cfg.HTTPTimeout, userAgent)
	feeds := denylist.NewFeedSource(cfg.CIDRBaseURL, cfg.HTTPTimeout, cache)

	return New(cfg, authority.Fetch, feeds, notifier), cache, nil
}
