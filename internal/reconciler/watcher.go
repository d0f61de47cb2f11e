package reconciler

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/canonical/cos-configuration-k8s-operator/pkg/logging"
)

// repoWatcher watches the sync root for changes written by the sync agent.
// git-sync updates the `.git` gitdir file in the repo directory atomically on
// every new revision, so watching the root (non-recursively) is enough to
// notice a completed sync cycle without polling.
//
// Events are debounced: git-sync touches many files during a cycle and only
// one trigger should result.
type repoWatcher struct {
	mu sync.Mutex

	root             string
	debounceInterval time.Duration

	watcher *fsnotify.Watcher
	timer   *time.Timer
	running bool

	// onChange is invoked (debounced) when the watched tree changes.
	onChange func()
}

func newRepoWatcher(root string, debounceInterval time.Duration, onChange func()) *repoWatcher {
	if debounceInterval == 0 {
		debounceInterval = 2 * time.Second
	}
	return &repoWatcher{
		root:             root,
		debounceInterval: debounceInterval,
		onChange:         onChange,
	}
}

// Start begins watching. A missing root is tolerated: the watch is retried
// whenever Rearm is called, which the manager does after each pass.
func (w *repoWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.running = true
	w.mu.Unlock()

	w.Rearm()
	go w.processEvents(ctx)

	logging.Info("RepoWatcher", "Watching %s for sync activity", w.root)
	return nil
}

// Rearm (re-)adds the watch on the sync root. The root may not exist until
// the sync agent's first run, so this is called again after every pass.
func (w *repoWatcher) Rearm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if _, err := os.Stat(w.root); err != nil {
		return
	}
	for _, path := range w.watcher.WatchList() {
		if path == w.root {
			return
		}
	}
	if err := w.watcher.Add(w.root); err != nil {
		logging.Debug("RepoWatcher", "Cannot watch %s yet: %v", w.root, err)
	}
}

func (w *repoWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.bump()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("RepoWatcher", "Watch error: %v", err)
		}
	}
}

// bump (re)schedules the debounced change notification.
func (w *repoWatcher) bump() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounceInterval, w.onChange)
}

// Stop stops watching and cancels any pending notification.
func (w *repoWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	return w.watcher.Close()
}
