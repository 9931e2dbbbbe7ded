package exceedance

import (
	"context"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDir emits one value on the returned channel once a burst of write or
// create events in dir has been quiet for debounce. Only names accepted by
// keep count. The channel closes when ctx is done.
func watchDir(ctx context.Context, dir string, debounce time.Duration, keep func(name string) bool) (<-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer w.Close()
		var last time.Time
		pending := false
		ticker := time.NewTicker(debounce / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 || !keep(ev.Name) {
					continue
				}
				pending = true
				last = time.Now()
			case <-ticker.C:
				if pending && time.Since(last) > debounce { // stable
					pending = false
					select {
					case out <- struct{}{}:
					default: // a run is already queued
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("watch error: %v", err)
			}
		}
	}()
	return out, nil
}
