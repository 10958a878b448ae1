package voice

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// Watcher serves voices from an archive and reloads it when the file (or
// the directory of .npy files) changes. A reload swaps in a complete new
// Store; a failed reload keeps the previous one.
type Watcher struct {
	path    string
	opts    LoadOptions
	current atomic.Pointer[Store]
	fsw     *fsnotify.Watcher
	reloads atomic.Int64
}

// NewWatcher loads path once and prepares a filesystem watch on it.
func NewWatcher(path string, opts LoadOptions) (*Watcher, error) {
	s, err := Load(path, opts)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("voice: create watcher: %w", err)
	}

	// A single archive is watched through its parent so replace-by-rename
	// is seen.
	dir := path
	if !isDir(path) {
		dir = filepath.Dir(path)
	}

	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("voice: watch %s: %w", dir, err)
	}

	w := &Watcher{path: path, opts: opts, fsw: fsw}
	w.current.Store(s)

	return w, nil
}

// Store returns the current snapshot.
func (w *Watcher) Store() *Store { return w.current.Load() }

// Names lists the current voices.
func (w *Watcher) Names() []string { return w.Store().Names() }

// Resolve looks name up in the current snapshot.
func (w *Watcher) Resolve(name string) (Embedding, error) { return w.Store().Resolve(name) }

// Reloads counts successful reloads.
func (w *Watcher) Reloads() int64 { return w.reloads.Load() }

// Reload loads the archive again and swaps it in on success.
func (w *Watcher) Reload() error {
	s, err := Load(w.path, w.opts)
	if err != nil {
		return err
	}

	w.current.Store(s)
	w.reloads.Add(1)

	return nil
}

// Close releases the filesystem watch without waiting for Run.
func (w *Watcher) Close() error { return w.fsw.Close() }

// Run processes filesystem events until ctx is done, then closes the watch.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var (
		timer   *time.Timer
		trigger <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}

			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}

			if !w.relevant(event) {
				continue
			}

			slog.Debug("voice archive changed", "file", event.Name, "op", event.Op.String())

			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}

			trigger = timer.C
		case <-trigger:
			trigger = nil

			if err := w.Reload(); err != nil {
				slog.Warn("voice reload failed; keeping previous voices", "path", w.path, "error", err)
				continue
			}

			slog.Info("voices reloaded", "path", w.path, "voices", w.Store().Len())
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}

			slog.Debug("voice watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return false
	}

	if isDir(w.path) {
		return filepath.Ext(event.Name) == npyExt
	}

	return filepath.Clean(event.Name) == filepath.Clean(w.path)
}
