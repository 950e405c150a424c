package discovery

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jingkaihe/skillrt/pkg/loader"
	"github.com/jingkaihe/skillrt/pkg/logger"
	"github.com/pkg/errors"
)

// DefaultDebounce is how long Watch waits for a burst of changes to settle
const DefaultDebounce = 300 * time.Millisecond

// Watch re-runs Discover whenever a file under one of the engine's
// directories changes, and passes every report to onChange. It blocks until
// ctx is cancelled.
func (e *Engine) Watch(ctx context.Context, debounce time.Duration, onChange func(*loader.LoadReport)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	roots := e.Dirs()
	watched := 0
	for _, root := range roots {
		n, err := addTree(watcher, root)
		if err != nil {
			return err
		}
		watched += n
	}
	logger.G(ctx).WithField("directories_count", watched).Info("skill watcher initialized")

	changes := make(chan string)
	settled := make(chan string)
	go debounceChanges(ctx, changes, settled, debounce)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if _, err := addTree(watcher, event.Name); err != nil {
						logger.G(ctx).WithError(err).WithField("directory", event.Name).Warn("failed to watch new directory")
					}
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			root := rootOf(roots, event.Name)
			logger.G(ctx).WithField("file", event.Name).WithField("operation", event.Op.String()).Debug("skill source change detected")
			select {
			case changes <- root:
			case <-ctx.Done():
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.G(ctx).WithError(err).Error("error watching skill directories")
		case root := <-settled:
			logger.G(ctx).WithField("directory", root).Info("skill sources changed, rediscovering")
			report := e.Discover(ctx)
			if onChange != nil {
				onChange(report)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// addTree watches dir and its subdirectories. A missing directory is ignored.
func addTree(watcher *fsnotify.Watcher, dir string) (int, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0, nil
	}
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		count++
		return watcher.Add(path)
	})
	if err != nil {
		return count, errors.Wrapf(err, "failed to watch %s", dir)
	}
	return count, nil
}

func rootOf(roots []string, path string) string {
	for _, root := range roots {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return root
		}
	}
	return path
}

// debounceChanges forwards a root once no change under it arrived for delay
func debounceChanges(ctx context.Context, input <-chan string, output chan<- string, delay time.Duration) {
	pending := make(map[string]*time.Timer)

	for {
		select {
		case root, ok := <-input:
			if !ok {
				for _, timer := range pending {
					timer.Stop()
				}
				return
			}
			if timer, exists := pending[root]; exists {
				timer.Stop()
			}
			r := root
			pending[root] = time.AfterFunc(delay, func() {
				select {
				case output <- r:
				case <-ctx.Done():
				}
			})
		case <-ctx.Done():
			for _, timer := range pending {
				timer.Stop()
			}
			return
		}
	}
}
