package watch

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultInterval is how often the session log's mtime is polled.
const DefaultInterval = 800 * time.Millisecond

// Watcher polls the active session log and broadcasts an update whenever its
// modification time moves forward. fsnotify write events trigger an early
// check; the poll alone is enough when fsnotify is unavailable.
type Watcher struct {
	Resolve  func() (string, error) // current session log path
	Hub      *Hub
	Interval time.Duration
	Logger   *slog.Logger

	now     func() time.Time
	fsw     *fsnotify.Watcher
	watched string
	lastMod time.Time
}

func (w *Watcher) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger().Warn("fsnotify unavailable, polling only", "error", err)
	} else {
		w.fsw = fsw
		if w.watched != "" {
			fsw.Add(w.watched)
		}
		defer func() {
			fsw.Close()
			w.fsw = nil
			w.watched = ""
		}()
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	if w.fsw != nil {
		events = w.fsw.Events
		errs = w.fsw.Errors
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.check()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.check()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.check()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger().Debug("fsnotify error", "error", err)
		}
	}
}

// check compares the log's mtime with the last one seen and broadcasts on an
// increase. A switch to a different log file resets the last-seen time.
func (w *Watcher) check() {
	path, err := w.Resolve()
	if err != nil {
		return
	}
	if path != w.watched {
		w.follow(path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return
	}
	mod := info.ModTime()
	if !mod.After(w.lastMod) {
		return
	}
	w.lastMod = mod

	now := time.Now
	if w.now != nil {
		now = w.now
	}
	n := w.Hub.Broadcast(Event{Type: EventUpdate, TS: now().UnixMilli()})
	w.logger().Debug("session log changed", "path", path, "subscribers", n)
}

func (w *Watcher) follow(path string) {
	if w.fsw != nil {
		if w.watched != "" {
			w.fsw.Remove(w.watched)
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger().Debug("fsnotify watch failed", "path", path, "error", err)
		}
	}
	w.watched = path
	w.lastMod = time.Time{}
}
