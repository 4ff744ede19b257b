// Package updater runs one blocklist update cycle end to end: resolve the
// country selection, collect entries from every source, back up and patch the
// AdGuard Home configuration, then ask AdGuard Home to reload it.
package updater

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/ipshipyard/adguard-blocklist/config"
	"github.com/ipshipyard/adguard-blocklist/country"
	"github.com/ipshipyard/adguard-blocklist/denylist"
	"github.com/ipshipyard/adguard-blocklist/docpatch"
)

var log = logging.Logger("blocklist/updater")

var (
	// ErrDocumentMissing is returned when the target document does not exist.
	// Nothing is fetched or written.
	ErrDocumentMissing = errors.New("target document does not exist")
	// ErrNoCountries is returned when the selection resolves to no country.
	ErrNoCountries = errors.New("country selection resolved to no countries")
)

// Status is the outcome of a cycle.
type Status string

const (
	StatusUpdated Status = "updated"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result describes a finished cycle.
type Result struct {
	Reason        string           `json:"reason"`
	Status        Status           `json:"status"`
	Started       time.Time        `json:"started"`
	Duration      time.Duration    `json:"duration"`
	Countries     []country.Code   `json:"countries,omitempty"`
	CIDREntries   int              `json:"cidr_entries"`
	ManualEntries int              `json:"manual_entries"`
	Overlap       denylist.Overlap `json:"overlap"`
	Reloaded      bool             `json:"reloaded"`
	Error         string           `json:"error,omitempty"`
	ReloadError   string           `json:"reload_error,omitempty"`
}

// Fetcher returns the entries for one country. It must not fail; a broken
// feed yields an empty list.
type Fetcher interface {
	Fetch(ctx context.Context, code country.Code) []denylist.Entry
}

// Reloader restarts the service that owns the document.
type Reloader interface {
	Reload(ctx context.Context, service string) error
}

// Orchestrator sequences update cycles. RunCycle is not safe for concurrent
// use; the daemon only calls it from its control loop.
type Orchestrator struct {
	cfg       config.Config
	authority country.AuthorityFunc
	feeds     Fetcher
	reloader  Reloader
	backups   *docpatch.BackupManager

	mu   sync.Mutex
	last *Result
}

// New returns an Orchestrator for cfg.
func New(cfg config.Config, authority country.AuthorityFunc, feeds Fetcher, reloader Reloader) *Orchestrator {
	initMetrics()
	return &Orchestrator{
		cfg:       cfg,
		authority: authority,
		feeds:     feeds,
		reloader:  reloader,
		backups:   docpatch.NewBackupManager(cfg.DocumentPath, cfg.FirstBackup, cfg.LastBackup),
	}
}

// RunCycle performs one update. A skipped cycle returns ErrDocumentMissing,
// ErrNoCountries or an error wrapping country.ErrConfig and leaves every file
// untouched. A failed reload is reported in the Result only; the document
// change stands.
//
// Cancelling ctx does not interrupt a cycle that has started: a cancelled
// feed request would look like a failed country and the document would be
// written without it. Requests are bounded by the client timeouts instead.
func (o *Orchestrator) RunCycle(ctx context.Context, reason string) (Result, error) {
	res := Result{Reason: reason, Started: time.Now()}
	log.Infof("starting update cycle (%s)", reason)

	err := o.runCycle(context.WithoutCancel(ctx), &res)
	res.Duration = time.Since(res.Started)

	switch {
	case err == nil:
		res.Status = StatusUpdated
		log.Infof("update cycle finished in %s: %d country entries, %d manual entries",
			res.Duration.Round(time.Millisecond), res.CIDREntries, res.ManualEntries)
	case isSkip(err):
		res.Status = StatusSkipped
		res.Error = err.Error()
		log.Errorf("update cycle skipped: %s", err)
	default:
		res.Status = StatusFailed
		res.Error = err.Error()
		log.Errorf("update cycle failed: %s", err)
	}

	recordCycle(res)
	o.mu.Lock()
	o.last = &res
	o.mu.Unlock()

	return res, err
}

func isSkip(err error) bool {
	return errors.Is(err, ErrDocumentMissing) || errors.Is(err, ErrNoCountries) || errors.Is(err, country.ErrConfig)
}

func (o *Orchestrator) runCycle(ctx context.Context, res *Result) error {
	doc := o.cfg.DocumentPath
	if _, err := os.Stat(doc); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrDocumentMissing, doc)
		}
		return fmt.Errorf("stat document: %w", err)
	}

	resolution, err := country.Resolve(ctx, o.cfg.Countries, o.authority)
	if err != nil {
		return err
	}
	if len(resolution.Countries) == 0 {
		return ErrNoCountries
	}
	res.Countries = resolution.Countries
	log.Infof("blocking %d countries", len(resolution.Countries))

	groups := make([]denylist.Group, 0, len(resolution.Countries))
	for _, code := range resolution.Countries {
		entries := o.feeds.Fetch(ctx, code)
		log.Debugf("country %s: %d entries", code, len(entries))
		groups = append(groups, denylist.Group{Country: code, Entries: entries})
	}

	manual, err := denylist.ReadManual(o.cfg.ManualIPsPath)
	if err != nil {
		return err
	}

	bl := denylist.Assemble(groups, manual)
	res.CIDREntries = bl.CIDRCount()
	res.ManualEntries = len(bl.Manual)
	res.Overlap = bl.Overlaps()
	if res.Overlap.Covered > 0 || res.Overlap.ManualCovered > 0 {
		log.Infof("%d country entries and %d manual entries are covered by other entries (%d distinct prefixes)",
			res.Overlap.Covered, res.Overlap.ManualCovered, res.Overlap.Distinct)
	}
	if bl.Len() == 0 {
		log.Warnf("block list is empty, %s will be cleared", o.cfg.TargetKey)
	}

	if _, err := o.backups.EnsureFirstStartBackup(); err != nil {
		return err
	}
	if err := o.backups.SnapshotBeforeUpdate(); err != nil {
		return err
	}
	if err := docpatch.PatchFile(doc, o.cfg.TargetKey, bl.Entries()); err != nil {
		return err
	}

	if err := o.reloader.Reload(ctx, o.cfg.ServiceName); err != nil {
		res.ReloadError = err.Error()
		incReloadFailure()
		log.Errorf("document updated but reload of %s failed: %s", o.cfg.ServiceName, err)
		return nil
	}
	res.Reloaded = true
	return nil
}

// Last returns the result of the most recent cycle.
func (o *Orchestrator) Last() (Result, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return Result{}, false
	}
	return *o.last, true
}
