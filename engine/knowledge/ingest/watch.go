package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/romdo/go-debounce"
	"github.com/spf13/afero"

	"github.com/compozy/nutrilens/pkg/logger"
)

const defaultWatchDebounce = 2 * time.Second

// WatchOptions tunes Watch. Bursts of file events are coalesced into one run
// after Debounce of quiet, and never delayed longer than MaxWait.
type WatchOptions struct {
	Debounce time.Duration
	MaxWait  time.Duration
}

// Watch runs an ingestion pass whenever an eligible file in the data path is
// created, written or renamed. The data path must be on the OS filesystem.
func (e *Engine) Watch(ctx context.Context, opts WatchOptions) (stop func(), err error) {
	log := logger.FromContext(ctx)
	if opts.Debounce <= 0 {
		opts.Debounce = defaultWatchDebounce
	}
	if opts.MaxWait < opts.Debounce {
		opts.MaxWait = 10 * opts.Debounce
	}
	dirs, err := e.watchDirs()
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("ingest: failed to create file watcher: %w", err)
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("ingest: failed to watch %s: %w", dir, err)
		}
	}
	trigger, cancelDebounce := debounce.NewWithMaxWait(opts.Debounce, opts.MaxWait, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := e.Run(ctx); err != nil {
			log.Error("Watched knowledge ingestion failed", "error", err)
		}
	})
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.watchLoop(ctx, watcher, trigger, done)
	}()
	log.Info("Knowledge directory watched", "data_path", e.opts.DataPath, "directories", len(dirs))
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			_ = watcher.Close()
			wg.Wait()
			cancelDebounce()
		})
	}, nil
}

func (e *Engine) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, trigger func(), done <-chan struct{}) {
	log := logger.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if e.opts.Recursive && event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						log.Warn("Failed to watch directory", "path", event.Name, "error", err)
					}
					continue
				}
			}
			if !e.eligible(event.Name) {
				continue
			}
			log.Debug("Knowledge file changed, debouncing", "file", event.Name)
			trigger()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Error("Watcher error", "error", err)
		}
	}
}

// watchDirs lists the data path and, when recursive, every directory below it.
func (e *Engine) watchDirs() ([]string, error) {
	root := filepath.Clean(e.opts.DataPath)
	info, err := e.fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrSourceUnavailable, root)
	}
	if !e.opts.Recursive {
		return []string{root}, nil
	}
	var dirs []string
	err = afero.Walk(e.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, root, err)
	}
	return dirs, nil
}

func (e *Engine) eligible(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return false
	}
	for _, allowed := range e.opts.extensions() {
		if allowed == ext {
			return true
		}
	}
	return false
}
