package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"vrcagent/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the config file for changes and reloads runtime tunables
// while the agent is running. Only the file named at construction triggers
// a reload; editor temp files in the same directory are ignored.
type Watcher struct {
	mu         sync.Mutex
	watcher    *fsnotify.Watcher
	configPath string
	onReload   func(*Config)
	debounce   time.Duration
	lastEvent  time.Time
	stopCh     chan struct{}
	doneCh     chan struct{}
	running    bool
}

// NewWatcher creates a Watcher for the given config file.
// onReload is called with the freshly loaded config after each change.
func NewWatcher(configPath string, onReload func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:    fw,
		configPath: configPath,
		onReload:   onReload,
		debounce:   500 * time.Millisecond, // coalesce rapid editor saves
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the watch loop runs in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Watch the directory: most editors replace the file on save, which
	// would drop a watch on the file itself.
	if err := w.watcher.Add(filepath.Dir(w.configPath)); err != nil {
		return err
	}

	go w.loop(ctx)
	logging.ConfigLog("watching %s for changes", w.configPath)
	return nil
}

// Stop shuts the watcher down and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	_ = w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.mu.Lock()
			since := time.Since(w.lastEvent)
			w.lastEvent = time.Now()
			w.mu.Unlock()
			if since < w.debounce {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.ConfigWarn("watch error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.configPath)
	if err != nil {
		// Keep running on the previous config; a broken edit is not fatal.
		logging.ConfigWarn("reload failed, keeping previous config: %v", err)
		return
	}
	logging.ConfigLog("config reloaded")
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
