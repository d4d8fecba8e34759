// Package whitelist consumes a vanilla-style whitelist file: a flat JSON
// array of {uuid, name} entries. The file is owned by an external tool; the
// proxy only ever reads snapshots of it.
package whitelist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Entry is one allowed identity.
type Entry struct {
	ID   string `json:"uuid"`
	Name string `json:"name"`
}

// Whitelist holds the most recent snapshot of the file. It re-reads on a
// fixed interval and additionally on filesystem change notifications, so
// edits land without waiting out the interval.
type Whitelist struct {
	Path   string
	Logger *logrus.Logger

	mu      sync.RWMutex
	byName  map[string]struct{}
	byID    map[uuid.UUID]struct{}
}

func New(path string, logger *logrus.Logger) *Whitelist {
	return &Whitelist{
		Path:   path,
		Logger: logger,
		byName: make(map[string]struct{}),
		byID:   make(map[uuid.UUID]struct{}),
	}
}

// Start loads the file once and then keeps the snapshot fresh until the
// context is canceled. The initial load must succeed; later failures only
// log and keep the previous snapshot.
func (w *Whitelist) Start(ctx context.Context, reloadInterval time.Duration) error {
	if err := w.Reload(); err != nil {
		return fmt.Errorf("loading whitelist: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating whitelist watcher: %w", err)
	}
	// Watch the directory rather than the file; editors that replace the
	// file would otherwise detach the watch.
	if err := watcher.Add(filepath.Dir(w.Path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watching whitelist directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		ticker := time.NewTicker(reloadInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.reloadAndLog()
			case event := <-watcher.Events:
				if event.Name == w.Path && event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					w.reloadAndLog()
				}
			case err := <-watcher.Errors:
				w.Logger.Warnf("whitelist watcher error: %v", err)
			}
		}
	}()
	return nil
}

func (w *Whitelist) reloadAndLog() {
	if err := w.Reload(); err != nil {
		w.Logger.Warnf("failed to reload whitelist from %s: %v", w.Path, err)
	}
}

// Reload reads the file and swaps in the new snapshot.
func (w *Whitelist) Reload() error {
	data, err := os.ReadFile(w.Path)
	if err != nil {
		return err
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parsing %s: %w", w.Path, err)
	}

	byName := make(map[string]struct{}, len(entries))
	byID := make(map[uuid.UUID]struct{}, len(entries))
	for _, entry := range entries {
		byName[strings.ToLower(entry.Name)] = struct{}{}
		if id, err := uuid.Parse(entry.ID); err == nil {
			byID[id] = struct{}{}
		}
	}

	w.mu.Lock()
	w.byName = byName
	w.byID = byID
	w.mu.Unlock()
	return nil
}

// AllowsName reports whether the username is whitelisted (case-insensitive).
func (w *Whitelist) AllowsName(name string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.byName[strings.ToLower(name)]
	return ok
}

// AllowsID reports whether the identity id is whitelisted.
func (w *Whitelist) AllowsID(id uuid.UUID) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.byID[id]
	return ok
}
