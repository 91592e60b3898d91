package trust

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/sgn-project/sgnd/errors"
)

// Watcher drives background hot-reload of a trust Store, per the
// "background file-mtime check" of §4.3 — implemented here via inotify
// events (fsnotify) rather than polling, with a debounce window to
// collapse bursts of writes into a single reload and an own-write guard
// so Store.save() never triggers a pointless self-reload.
type Watcher struct {
	store *Store
	log   *zap.SugaredLogger

	fsw            *fsnotify.Watcher
	mu             sync.Mutex
	debounceTimer  *time.Timer
	debouncePeriod time.Duration

	done chan struct{}
}

// NewWatcher begins watching store's backing file for changes.
func NewWatcher(store *Store, log *zap.SugaredLogger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating fsnotify watcher")
	}
	if err := fsw.Add(store.path); err != nil {
		fsw.Close()
		return nil, errors.Wrapf(err, "watching trust file %s", store.path)
	}

	w := &Watcher{
		store:          store,
		log:            log,
		fsw:            fsw,
		debouncePeriod: 500 * time.Millisecond,
		done:           make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if w.store.checkOwnWrite() {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Warnw("trust watcher error", "error", err)
			}
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debouncePeriod, func() {
		if err := w.store.Reload(); err != nil {
			if w.log != nil {
				w.log.Errorw("trust reload failed", "error", err)
			}
			return
		}
		if w.log != nil {
			w.log.Infow("trust store reloaded", "path", w.store.path)
		}
	})
}

// Stop releases the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsw.Close()
}
