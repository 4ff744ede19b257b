package docpatch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// BackupManager snapshots the target document before it is mutated.
//
// The first-start backup is written once and never replaced, so it keeps the
// document as it was before this program ever touched it. The last-update
// backup is replaced on every cycle and holds the state right before the most
// recent patch.
type BackupManager struct {
	Document  string
	FirstPath string
	LastPath  string
}

// NewBackupManager returns a BackupManager for document.
func NewBackupManager(document, firstPath, lastPath string) *BackupManager {
	return &BackupManager{Document: document, FirstPath: firstPath, LastPath: lastPath}
}

// EnsureFirstStartBackup copies the document to the first-start path unless
// a backup already exists there. It reports whether a copy was made.
func (b *BackupManager) EnsureFirstStartBackup() (bool, error) {
	_, err := os.Stat(b.FirstPath)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("stat first-start backup: %w", err)
	}

	if err := b.copyTo(b.FirstPath); err != nil {
		return false, fmt.Errorf("first-start backup: %w", err)
	}
	log.Infof("created first-start backup %s", b.FirstPath)
	return true, nil
}

// SnapshotBeforeUpdate overwrites the last-update backup with the current
// document.
func (b *BackupManager) SnapshotBeforeUpdate() error {
	if err := b.copyTo(b.LastPath); err != nil {
		return fmt.Errorf("last-update backup: %w", err)
	}
	log.Debugf("saved last-update backup %s", b.LastPath)
	return nil
}

func (b *BackupManager) copyTo(dst string) error {
	data, err := os.ReadFile(b.Document)
	if err != nil {
		return err
	}
	perm := fs.FileMode(0o644)
	if fi, err := os.Stat(b.Document); err == nil {
		perm = fi.Mode().Perm()
	}
	return WriteFile(dst, data, perm)
}
