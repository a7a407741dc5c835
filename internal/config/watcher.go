package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"tools.zach/dev/statuscord/internal/paths"
)

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

const (
	defaultPollEvery = 2 * time.Second
	defaultSettle    = 250 * time.Millisecond
)

// Watcher signals edits to config.toml. The data directory is watched instead
// of the file so replace-by-rename saves are seen. When fsnotify cannot be
// used the file is polled. A burst of writes yields one signal once the file
// has been quiet for the settle window.
type Watcher struct {
	path      string
	changes   chan struct{}
	done      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
	closeErr  error
	polling   atomic.Bool
	pollEvery time.Duration
	settle    time.Duration
	log       *slog.Logger
}

type watchOptions struct {
	forcePoll bool
	pollEvery time.Duration
	settle    time.Duration
}

// fileStamp identifies one version of the config file for polling.
type fileStamp struct {
	size   int64
	mod    int64
	exists bool
}

// NewWatcher starts watching the config file in dataDir.
func NewWatcher(dataDir string, log *slog.Logger) (*Watcher, error) {
	return newWatcher(dataDir, log, watchOptions{pollEvery: defaultPollEvery, settle: defaultSettle})
}

func newWatcher(dataDir string, log *slog.Logger, opts watchOptions) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	info, err := os.Stat(dataDir)
	if err != nil {
		return nil, fmt.Errorf("watch config: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch config: %s is not a directory", dataDir)
	}

	w := &Watcher{
		path:      paths.DataDir{Root: dataDir}.Config(),
		changes:   make(chan struct{}, 1),
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
		pollEvery: opts.pollEvery,
		settle:    opts.settle,
		log:       log,
	}

	var fsw *fsnotify.Watcher
	if !opts.forcePoll {
		fsw = w.openNative(dataDir)
	}
	w.polling.Store(fsw == nil)
	go w.run(fsw)
	return w, nil
}

func (w *Watcher) openNative(dir string) *fsnotify.Watcher {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Info("fsnotify unavailable, polling config", "error", err)
		return nil
	}
	if err := fsw.Add(dir); err != nil {
		w.log.Info("cannot watch data dir, polling config", "path", dir, "error", err)
		fsw.Close()
		return nil
	}
	return fsw
}

// Polling reports whether changes are detected by stat polling.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Events delivers one value per settled change. Pending signals coalesce.
func (w *Watcher) Events() <-chan struct{} {
	return w.changes
}

// Close stops the watcher and waits for it to release the native watch.
// Repeated calls return the first result.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	<-w.exited
	return w.closeErr
}

func (w *Watcher) run(fsw *fsnotify.Watcher) {
	var (
		fsEvents <-chan fsnotify.Event
		fsErrors <-chan error
		ticker   *time.Ticker
		tick     <-chan time.Time
		last     fileStamp
		settle   *time.Timer
		settled  <-chan time.Time
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		if settle != nil {
			settle.Stop()
		}
		if fsw != nil {
			if err := fsw.Close(); err != nil {
				w.closeErr = fmt.Errorf("close fsnotify watcher: %w", err)
			}
		}
		close(w.exited)
	}()

	startPolling := func() {
		w.polling.Store(true)
		last = w.stamp()
		ticker = time.NewTicker(w.pollEvery)
		tick = ticker.C
	}
	changed := func() {
		if w.settle <= 0 {
			w.notify()
			return
		}
		if settle == nil {
			settle = time.NewTimer(w.settle)
		} else {
			settle.Reset(w.settle)
		}
		settled = settle.C
	}

	if fsw != nil {
		fsEvents, fsErrors = fsw.Events, fsw.Errors
	} else {
		startPolling()
	}

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-fsEvents:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != paths.ConfigFile {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				changed()
			}
		case err, ok := <-fsErrors:
			if !ok {
				return
			}
			w.log.Info("fsnotify error, polling config", "error", err)
			fsw.Close()
			fsw = nil
			fsEvents, fsErrors = nil, nil
			startPolling()
		case <-tick:
			now := w.stamp()
			if now != last {
				last = now
				// A deleted file keeps the previous rules; only a file that
				// exists is worth reloading.
				if now.exists {
					changed()
				}
			}
		case <-settled:
			settled = nil
			w.notify()
		}
	}
}

func (w *Watcher) stamp() fileStamp {
	info, err := os.Stat(w.path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{size: info.Size(), mod: info.ModTime().UnixNano(), exists: true}
}

func (w *Watcher) notify() {
	select {
	case w.changes <- struct{}{}:
	default:
	}
}
