package denylist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// manualSource is the metrics label for the operator's manual list.
const manualSource = "manual"

// settleDelay lets an editor finish writing before the file is re-read.
const settleDelay = 100 * time.Millisecond

// ReadManual reads the operator's manual list. A missing file yields no
// entries and no error; malformed lines are dropped.
func ReadManual(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Infof("manual list %s does not exist, skipping", path)
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("open manual list: %w", err)
	}
	defer f.Close()

	res, err := parseList(f)
	if err != nil {
		return nil, fmt.Errorf("read manual list: %w", err)
	}
	for _, line := range res.dropped {
		log.Debugf("manual list %s: ignoring invalid entry %q", path, line)
	}
	initMetrics()
	addDropped(manualSource, len(res.dropped))
	updateEntries(manualSource, len(res.entries))
	updateLastUpdate(manualSource, time.Now().Unix())

	log.Infof("manual list %s: added %d entries", path, len(res.entries))
	if res.entries == nil {
		res.entries = []Entry{}
	}
	return res.entries, nil
}

// ManualWatcher calls a function whenever the manual list is written,
// created, renamed or removed.
type ManualWatcher struct {
	path      string
	onChange  func()
	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

// WatchManual starts watching path. The directory is watched rather than the
// file so that editors replacing the file atomically are noticed.
func WatchManual(path string, onChange func()) (*ManualWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	mw := &ManualWatcher{
		path:     path,
		onChange: onChange,
		watcher:  watcher,
		done:     make(chan struct{}),
	}
	go mw.watchLoop()

	return mw, nil
}

func (mw *ManualWatcher) watchLoop() {
	filename := filepath.Base(mw.path)
	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

	for {
		select {
		case <-mw.done:
			return
		case event, ok := <-mw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename || event.Op&relevant == 0 {
				continue
			}
			// Small delay to let writes complete
			select {
			case <-mw.done:
				return
			case <-time.After(settleDelay):
			}
			mw.drain()
			log.Infof("manual list %s changed", mw.path)
			mw.onChange()
		case err, ok := <-mw.watcher.Errors:
			if ok && err != nil {
				log.Warnf("manual list %s: watcher error: %v", mw.path, err)
			}
		}
	}
}

// drain discards events queued during the settle delay so a burst of writes
// produces a single notification.
func (mw *ManualWatcher) drain() {
	for {
		select {
		case _, ok := <-mw.watcher.Events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Close implements io.Closer. Safe to call multiple times.
func (mw *ManualWatcher) Close() error {
	var err error
	mw.closeOnce.Do(func() {
		close(mw.done)
		err = mw.watcher.Close()
	})
	return err
}
