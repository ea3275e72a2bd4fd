package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sophialabs/mockexpect/internal/infrastructure/ports"
)

// Watcher calls onChange once file activity under rootDir has been quiet
// for the debounce interval. Only YAML files count, except the store's own
// temp files; the expectation files themselves are rewritten by rename, which
// fsnotify reports as a create.
type Watcher struct {
	rootDir  string
	debounce time.Duration
	logger   ports.Logger
	watcher  *fsnotify.Watcher
	onChange func()
}

// NewWatcher creates a watcher over rootDir and every directory below it.
func NewWatcher(rootDir string, debounce time.Duration, logger ports.Logger, onChange func()) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		rootDir:  rootDir,
		debounce: debounce,
		logger:   logger,
		watcher:  fsWatcher,
		onChange: onChange,
	}
	if err := w.addTree(rootDir); err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is done, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addTree(event.Name)
					continue
				}
			}
			if !w.relevant(event) {
				continue
			}

			w.logger.Debug("expectation file changed", "file", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)

		case <-fire:
			fire = nil
			w.onChange()
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(event.Name), tempPrefix) {
		return false
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		// A removed directory takes its files with it.
		return isYAMLFile(event.Name) || filepath.Ext(event.Name) == ""
	}
	return isYAMLFile(event.Name)
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}
