package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher reloads fixture files matching a glob when they change.
type Watcher struct {
	pattern  string
	debounce time.Duration
	logger   *zap.Logger
	onChange func([]*File)
	fsw      *fsnotify.Watcher
}

// WatchOption customizes a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets how long the watcher waits for changes to settle
// before reloading. Defaults to 200ms.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogger sets the watcher's logger.
func WithWatchLogger(l *zap.Logger) WatchOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWatcher watches the directories under the static prefix of pattern.
// onChange receives the reloaded files after every settled change; when
// the last matching file is removed it receives an empty slice. Files
// that fail to load are logged and the previous fixtures are kept.
func NewWatcher(pattern string, onChange func([]*File), opts ...WatchOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		pattern:  filepath.Clean(pattern),
		debounce: defaultDebounce,
		logger:   zap.NewNop(),
		onChange: onChange,
		fsw:      fsw,
	}
	for _, opt := range opts {
		opt(w)
	}

	base, _ := doublestar.SplitPattern(filepath.ToSlash(w.pattern))
	err = filepath.WalkDir(filepath.FromSlash(base), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(p)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes file events until ctx is done. It closes the underlying
// watcher before returning.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fixture watcher error", zap.Error(err))
		}
	}
}

// relevant reports whether ev touches a fixture file. New directories
// are added to the watch list.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	name := filepath.Clean(ev.Name)

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(name); err == nil && info.IsDir() {
			if err := w.fsw.Add(name); err != nil {
				w.logger.Warn("watching new directory failed", zap.String("dir", name), zap.Error(err))
			}
			return false
		}
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}

	matched, err := doublestar.PathMatch(w.pattern, name)
	return err == nil && matched
}

func (w *Watcher) reload() {
	files, err := LoadGlob(w.pattern)
	switch {
	case errors.Is(err, ErrNoFiles):
		files = []*File{}
	case err != nil:
		w.logger.Error("fixture reload failed", zap.Error(err))
		return
	}

	w.logger.Info("fixtures reloaded", zap.String("pattern", w.pattern), zap.Int("files", len(files)))
	if w.onChange != nil {
		w.onChange(files)
	}
}
