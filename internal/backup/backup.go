// Package backup implements the periodic full-grid snapshot engine of
// spec.md §4.7: a raw binary dump for restore, written on an interval and
// restored from the newest on-disk file at startup. Grounded on
// original_source/Backup/backup.py for the filename convention and
// retention semantics, and on the teacher's
// internal/runtime/server/snapshot_store.go for the periodic-ticker loop
// shape (startSnapshotLoop/persistSnapshot), generalized from JSON pane
// snapshots to raw 7-byte-cell pixel-grid dumps.
package backup

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/framegrace/pixelwell/internal/heart"
)

const rawExt = ".pxb"

const filenameLayout = "2006_01_02_15_04_05"

// Engine periodically dumps store to disk and restores the newest dump on
// startup.
type Engine struct {
	store     *heart.Heart
	directory string
	interval  time.Duration
	retention time.Duration
	logger    *log.Logger

	quit chan struct{}
	done chan struct{}
}

// NewEngine creates a backup engine. retention of zero disables deletion
// of old files.
func NewEngine(store *heart.Heart, directory string, interval, retention time.Duration, logger *log.Logger) *Engine {
	return &Engine{
		store:     store,
		directory: directory,
		interval:  interval,
		retention: retention,
		logger:    logger,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// RestoreLatest scans the configured directory for files named
// backup_YYYY_MM_DD_HH_MM_SS.pxb and restores the lexicographically
// greatest (equivalently, newest) into the store. A size mismatch, parse
// error, or absent directory/file is logged and otherwise tolerated: the
// server proceeds with an empty canvas rather than aborting startup, per
// spec.md §7's preferred design.
func (e *Engine) RestoreLatest() {
	entries, err := os.ReadDir(e.directory)
	if err != nil {
		e.logf("backup: no backup directory at %s, starting with empty canvas: %v", e.directory, err)
		return
	}
	var candidates []string
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		if strings.HasPrefix(ent.Name(), "backup_") && strings.HasSuffix(ent.Name(), rawExt) {
			candidates = append(candidates, ent.Name())
		}
	}
	if len(candidates) == 0 {
		e.logf("backup: no backup files in %s, starting with empty canvas", e.directory)
		return
	}
	sort.Strings(candidates)
	newest := candidates[len(candidates)-1]
	path := filepath.Join(e.directory, newest)

	data, err := os.ReadFile(path)
	if err != nil {
		e.logf("backup: failed reading %s, starting with empty canvas: %v", path, err)
		return
	}
	if err := e.store.Restore(data); err != nil {
		e.logf("backup: %s is not a valid backup (%v), starting with empty canvas", path, err)
		return
	}
	e.logf("backup: restored %s", path)
}

// Start launches the periodic dump loop; it runs until stop is closed.
func (e *Engine) Start(stop <-chan struct{}) {
	go e.loop(stop)
}

func (e *Engine) loop(stop <-chan struct{}) {
	defer close(e.done)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.snapshotOnce()
			e.applyRetention()
		case <-stop:
			return
		case <-e.quit:
			return
		}
	}
}

// Stop terminates the periodic loop and waits for it to exit.
func (e *Engine) Stop() {
	select {
	case <-e.quit:
	default:
		close(e.quit)
	}
	<-e.done
}

func (e *Engine) snapshotOnce() {
	if err := os.MkdirAll(e.directory, 0o755); err != nil {
		e.logf("backup: could not create %s: %v", e.directory, err)
		return
	}
	name := backupFileName(time.Now().UTC())
	path := filepath.Join(e.directory, name)
	dump := e.store.Dump()
	if err := os.WriteFile(path, dump, 0o644); err != nil {
		e.logf("backup: failed writing %s: %v", path, err)
		return
	}
	e.logf("backup: wrote %s (%s)", path, humanize.Bytes(uint64(len(dump))))
}

func (e *Engine) applyRetention() {
	if e.retention <= 0 {
		return
	}
	entries, err := os.ReadDir(e.directory)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-e.retention)
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), rawExt) {
			continue
		}
		ts, err := parseBackupTimestamp(ent.Name())
		if err != nil || ts.After(cutoff) {
			continue
		}
		path := filepath.Join(e.directory, ent.Name())
		if err := os.Remove(path); err != nil {
			e.logf("backup: failed deleting expired %s: %v", path, err)
		}
	}
}

func backupFileName(t time.Time) string {
	return fmt.Sprintf("backup_%s%s", t.Format(filenameLayout), rawExt)
}

func parseBackupTimestamp(name string) (time.Time, error) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, "backup_"), rawExt)
	return time.Parse(filenameLayout, trimmed)
}
