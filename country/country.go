// Package country resolves the operator's country selection against an
// authoritative list of ISO 3166-1 alpha-2 codes.
//
// A selection is either an inclusion list ("fr,de") or an exclusion list
// ("!us,!ca"). Mixing the two forms, or passing nothing, is a configuration
// error. The resolved set is always a subset of the authority set.
package country

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("blocklist/country")

// negation marks an excluded country in a selection.
const negation = "!"

// ErrConfig is returned for an empty or mixed inclusion/exclusion selection.
var ErrConfig = errors.New("invalid country selection")

// Code is a two-letter country code, always stored upper case.
type Code string

// NewCode normalizes s into a Code.
func NewCode(s string) Code {
	return Code(strings.ToUpper(strings.TrimSpace(s)))
}

// Lower returns the lower case form used in feed URLs.
func (c Code) Lower() string {
	return strings.ToLower(string(c))
}

func (c Code) String() string {
	return string(c)
}

// Selection is a parsed country selection.
type Selection struct {
	// Exclude is true when every entry carried the negation marker.
	Exclude bool
	// Codes holds the requested codes in input order, without duplicates.
	Codes []Code
}

// ParseSelection parses a comma-separated selection.
func ParseSelection(raw string) (Selection, error) {
	var (
		sel      Selection
		negated  int
		plain    int
		seen     = make(map[Code]struct{})
		rawParts = strings.Split(raw, ",")
	)

	for _, part := range rawParts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, negation) {
			negated++
			part = strings.TrimSpace(strings.TrimPrefix(part, negation))
		} else {
			plain++
		}
		code := NewCode(part)
		if code == "" {
			return Selection{}, fmt.Errorf("%w: empty code after %q", ErrConfig, negation)
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		sel.Codes = append(sel.Codes, code)
	}

	switch {
	case negated == 0 && plain == 0:
		return Selection{}, fmt.Errorf("%w: no countries specified", ErrConfig)
	case negated > 0 && plain > 0:
		return Selection{}, fmt.Errorf("%w: cannot mix included and excluded (%s) countries in %q", ErrConfig, negation, raw)
	}

	sel.Exclude = negated > 0
	return sel, nil
}

// Resolution is the outcome of resolving a selection.
type Resolution struct {
	// Countries is the sorted set of codes to block.
	Countries []Code
	// Unknown lists requested codes that are absent from the authority set.
	Unknown []Code
	// Exclude reports the selection mode.
	Exclude bool
}

// AuthorityFunc returns the authoritative set of country codes.
type AuthorityFunc func(ctx context.Context) (map[Code]struct{}, error)

// Resolve parses raw and resolves it against the set returned by authority.
// An authority failure is not fatal: it is logged and treated as an empty set.
func Resolve(ctx context.Context, raw string, authority AuthorityFunc) (Resolution, error) {
	sel, err := ParseSelection(raw)
	if err != nil {
		return Resolution{}, err
	}

	known, err := authority(ctx)
	if err != nil {
		log.Warnf("country authority unavailable, treating as empty: %v", err)
		known = nil
	}

	res := resolve(sel, known)
	if len(res.Unknown) > 0 {
		log.Infof("ignoring unknown country codes: %s", joinCodes(res.Unknown))
	}
	if sel.Exclude && len(known) == 0 {
		log.Errorf("exclusion selection %q resolved against an empty authority set; no countries will be blocked", raw)
	}
	return res, nil
}

func resolve(sel Selection, known map[Code]struct{}) Resolution {
	res := Resolution{Exclude: sel.Exclude}

	requested := make(map[Code]struct{}, len(sel.Codes))
	for _, c := range sel.Codes {
		requested[c] = struct{}{}
		if _, ok := known[c]; !ok {
			res.Unknown = append(res.Unknown, c)
		}
	}

	if sel.Exclude {
		for c := range known {
			if _, ok := requested[c]; !ok {
				res.Countries = append(res.Countries, c)
			}
		}
	} else {
		for c := range requested {
			if _, ok := known[c]; ok {
				res.Countries = append(res.Countries, c)
			}
		}
	}

	slices.Sort(res.Countries)
	return res
}

func joinCodes(codes []Code) string {
	s := make([]string, len(codes))
	for i, c := range codes {
		s[i] = string(c)
	}
	return strings.Join(s, ",")
}
