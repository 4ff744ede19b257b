// Package denylist collects the IPv4 entries written into the AdGuard Home
// disallowed clients list: per-country CIDR feeds fetched over HTTP and the
// operator's manual list read from a local file.
//
// Sources never fail a whole update. A country whose feed cannot be fetched
// contributes no entries, and malformed lines are dropped one by one.
package denylist

import (
	"runtime/debug"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("blocklist/denylist")

// Entry is a single IPv4 address or IPv4 CIDR block, kept as the text that
// will be written into the target document.
type Entry string

// UserAgent returns an identifier for HTTP requests to feed operators and the
// control plane.
func UserAgent() string {
	const (
		name       = "adguard-blocklist"
		importPath = "github.com/ipshipyard/adguard-blocklist"
	)
	version := "unknown"
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range bi.Deps {
			if dep.Path == importPath {
				version = dep.Version
				break
			}
		}
		// Main module
		if version == "unknown" && bi.Main.Path == importPath && bi.Main.Version != "" {
			version = bi.Main.Version
		}
	}
	return name + "/" + version
}
