package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/iclim/ml-app/artifact"
)

const defaultDebounce = 250 * time.Millisecond

// Watch reloads a model whenever one of its artifact files in dir changes.
// Writes within the debounce window collapse into one reload. Watch
// returns once the watcher is running; it stops when ctx is done.
func (r *Registry) Watch(ctx context.Context, dir string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create artifact watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	r.logger.Info("watching artifacts", zap.String("dir", dir), zap.Duration("debounce", debounce))

	go r.watchLoop(ctx, watcher, debounce)
	return nil
}

func (r *Registry) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, debounce time.Duration) {
	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
	)
	defer func() {
		watcher.Close()
		mu.Lock()
		for _, timer := range timers {
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
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			id, ok := artifact.IdentifierFromFile(event.Name)
			if !ok {
				continue
			}
			if _, err := r.Lookup(id); err != nil {
				continue
			}
			mu.Lock()
			if timer, exists := timers[id]; exists {
				timer.Reset(debounce)
			} else {
				timers[id] = time.AfterFunc(debounce, func() {
					mu.Lock()
					delete(timers, id)
					mu.Unlock()
					if ctx.Err() != nil {
						return
					}
					r.logger.Info("artifact changed, reloading", zap.String("model", id))
					r.Reload(ctx, id)
				})
			}
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("artifact watcher error", zap.Error(err))
		}
	}
}
