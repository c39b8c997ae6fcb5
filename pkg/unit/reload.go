package unit

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/unitdebug/pkg/log"
)

const reloadDebounce = 100 * time.Millisecond

// watchConfig signals on the returned channel when path is written or
// replaced. Bursts of events within the debounce delay signal once. The
// channel is closed when ctx is done or the watcher fails.
func watchConfig(ctx context.Context, path string, debounce time.Duration, logger log.Logger) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory so editors that replace the file are noticed.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	out := make(chan struct{}, 1)
	name := filepath.Base(path)

	var (
		mu      sync.Mutex
		timer   *time.Timer
		stopped bool
	)
	notify := func() {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		select {
		case out <- struct{}{}:
		default:
		}
	}

	go func() {
		defer close(out)
		defer watcher.Close()
		defer func() {
			mu.Lock()
			stopped = true
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, notify)
				mu.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("config watcher error", log.Err(err), log.String("path", path))
			}
		}
	}()
	return out, nil
}
