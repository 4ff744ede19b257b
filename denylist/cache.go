package denylist

import (
	"context"
	"errors"
	"strings"

	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	badger4 "github.com/ipfs/go-ds-badger4"

	"github.com/ipshipyard/adguard-blocklist/country"
)

// FeedCache remembers the last successfully fetched body of every country
// feed together with its Last-Modified header, so unchanged feeds can be
// answered with 304 Not Modified.
type FeedCache struct {
	ds datastore.Datastore
}

// NewFeedCache wraps an existing datastore.
func NewFeedCache(ds datastore.Datastore) *FeedCache {
	return &FeedCache{ds: ds}
}

// OpenFeedCache opens a badger datastore in dir, or an in-memory datastore
// when dir is empty.
func OpenFeedCache(dir string) (*FeedCache, error) {
	if dir == "" {
		return NewFeedCache(dssync.MutexWrap(datastore.NewMapDatastore())), nil
	}
	ds, err := badger4.NewDatastore(dir, nil)
	if err != nil {
		return nil, err
	}
	return NewFeedCache(ds), nil
}

func entriesKey(code country.Code) datastore.Key {
	return datastore.NewKey("/feeds/" + code.Lower() + "/entries")
}

func modifiedKey(code country.Code) datastore.Key {
	return datastore.NewKey("/feeds/" + code.Lower() + "/last-modified")
}

// LastModified returns the stored Last-Modified value for code, or "" if the
// feed was never cached.
func (c *FeedCache) LastModified(ctx context.Context, code country.Code) string {
	if c == nil {
		return ""
	}
	v, err := c.ds.Get(ctx, modifiedKey(code))
	if err != nil {
		return ""
	}
	return string(v)
}

// Entries returns the cached entries for code.
func (c *FeedCache) Entries(ctx context.Context, code country.Code) ([]Entry, bool) {
	if c == nil {
		return nil, false
	}
	v, err := c.ds.Get(ctx, entriesKey(code))
	if err != nil {
		if !errors.Is(err, datastore.ErrNotFound) {
			log.Warnf("feed cache %s: read failed: %v", code, err)
		}
		return nil, false
	}
	if len(v) == 0 {
		return []Entry{}, true
	}
	lines := strings.Split(string(v), "\n")
	entries := make([]Entry, len(lines))
	for i, l := range lines {
		entries[i] = Entry(l)
	}
	return entries, true
}

// Store records entries and lastModified for code. An empty lastModified
// removes any stored value so the next request is unconditional.
func (c *FeedCache) Store(ctx context.Context, code country.Code, entries []Entry, lastModified string) error {
	if c == nil {
		return nil
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = string(e)
	}
	if err := c.ds.Put(ctx, entriesKey(code), []byte(strings.Join(lines, "\n"))); err != nil {
		return err
	}
	if lastModified == "" {
		if err := c.ds.Delete(ctx, modifiedKey(code)); err != nil && !errors.Is(err, datastore.ErrNotFound) {
			return err
		}
		return nil
	}
	return c.ds.Put(ctx, modifiedKey(code), []byte(lastModified))
}

// Close closes the underlying datastore.
func (c *FeedCache) Close() error {
	if c == nil {
		return nil
	}
	return c.ds.Close()
}
