package denylist

import (
	"bufio"
	"io"
	"net/netip"
	"regexp"
	"strings"
)

// entryShape matches a dotted quad with an optional prefix length.
var entryShape = regexp.MustCompile(`^\d{1,3}(?:\.\d{1,3}){3}(?:/\d{1,2})?$`)

// parseEntry validates line as an IPv4 address or IPv4 CIDR block.
// The returned prefix is a /32 for plain addresses.
func parseEntry(line string) (netip.Prefix, bool) {
	if !entryShape.MatchString(line) {
		return netip.Prefix{}, false
	}
	if strings.Contains(line, "/") {
		p, err := netip.ParsePrefix(line)
		if err != nil || !p.Addr().Is4() {
			return netip.Prefix{}, false
		}
		return p, true
	}
	ip, err := netip.ParseAddr(line)
	if err != nil || !ip.Is4() {
		return netip.Prefix{}, false
	}
	return netip.PrefixFrom(ip, 32), true
}

// ValidEntry reports whether s has the IPv4[/prefix] shape.
func ValidEntry(s string) bool {
	_, ok := parseEntry(s)
	return ok
}

// parseResult is the outcome of reading a list.
type parseResult struct {
	entries []Entry
	dropped []string
}

// parseList reads one entry per line. Empty lines and lines starting with #
// or ; are skipped, inline comments are stripped, and lines that are not an
// IPv4 address or CIDR block are collected in dropped.
func parseList(r io.Reader) (parseResult, error) {
	var res parseResult
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		// Handle inline comments ("203.0.113.7 # office scanner")
		if idx := strings.IndexAny(line, ";#"); idx != -1 {
			line = strings.TrimSpace(line[:idx])
		}

		if !ValidEntry(line) {
			res.dropped = append(res.dropped, line)
			continue
		}
		res.entries = append(res.entries, Entry(line))
	}

	return res, scanner.Err()
}
