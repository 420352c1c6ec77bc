// Package app provides application services that orchestrate the
// material pipeline: discover, build, publish, sync.
package app

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long the watcher waits after the last event
// before rebuilding. Editors and build tools write in bursts.
const DefaultDebounce = 500 * time.Millisecond

// Watcher triggers a rebuild when anything under an input tree
// changes, coalescing event bursts into one call.
type Watcher struct {
	root     string
	skip     map[string]bool
	debounce time.Duration
	rebuild  func()
	logger   zerolog.Logger

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewWatcher creates a watcher over root. The rebuild callback runs on
// the watcher's goroutine after events settle for the debounce window.
// Directories named in skipDirectories are not watched.
func NewWatcher(root string, skipDirectories []string, debounce time.Duration, rebuild func(), logger zerolog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	skip := make(map[string]bool, len(skipDirectories))
	for _, name := range skipDirectories {
		skip[name] = true
	}
	return &Watcher{
		root:     root,
		skip:     skip,
		debounce: debounce,
		rebuild:  rebuild,
		logger:   logger.With().Str("service", "watcher").Logger(),
		stopCh:   make(chan struct{}),
	}
}

// Start begins watching every directory under root. Directories created
// later join the watch as their create events arrive.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	w.watcher = watcher

	err = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if !d.IsDir() {
			return nil
		}
		if w.skip[d.Name()] && path != w.root {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", w.root, err)
	}

	go w.watchLoop()

	w.logger.Info().Str("root", w.root).Msg("watching input tree for changes")
	return nil
}

// Stop stops the watcher. Pending debounced rebuilds are discarded.
func (w *Watcher) Stop() {
	close(w.stopCh)
	if w.watcher != nil {
		w.watcher.Close()
	}
}

func (w *Watcher) watchLoop() {
	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if w.skip[filepath.Base(event.Name)] {
				continue
			}

			// New directories join the watch so nested edits are seen.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watcher.Add(event.Name); err != nil {
						w.logger.Error().Err(err).Str("dir", event.Name).Msg("failed to watch new directory")
					}
				}
			}

			w.logger.Debug().
				Str("event", event.Op.String()).
				Str("file", event.Name).
				Msg("input changed")

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				pending = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-pending:
			timer = nil
			pending = nil
			w.rebuild()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("file watcher error")

		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}
