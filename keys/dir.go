package keys

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

var dirExtensions = []string{"", ".pem", ".key"}

// Dir serves keys from files in a directory. The identifier "jwt_rs256" maps
// to the first of jwt_rs256, jwt_rs256.pem or jwt_rs256.key that exists.
type Dir struct {
	root     string
	logger   *zap.Logger
	debounce time.Duration
}

// NewDir returns a provider rooted at dir.
func NewDir(dir string, logger *zap.Logger) (*Dir, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("keys: open dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("keys: %s is not a directory", dir)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dir{root: dir, logger: logger, debounce: 500 * time.Millisecond}, nil
}

// GetKey implements Provider. Identifiers containing path separators are
// treated as unknown.
func (d *Dir) GetKey(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return nil, ErrNotFound
	}
	for _, ext := range dirExtensions {
		data, err := os.ReadFile(filepath.Join(d.root, id+ext))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("keys: read %s: %w", id, err)
		}
	}
	return nil, ErrNotFound
}

// Watch calls onChange after files in the directory are written, created or
// removed. Bursts of events are coalesced. Watch returns once the watcher is
// running; it stops when ctx is done.
func (d *Dir) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("keys: watch: %w", err)
	}
	if err := watcher.Add(d.root); err != nil {
		watcher.Close()
		return fmt.Errorf("keys: watch %s: %w", d.root, err)
	}

	go d.watchLoop(ctx, watcher, onChange)
	return nil
}

func (d *Dir) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, onChange func()) {
	defer watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(d.debounce)
			} else {
				timer.Reset(d.debounce)
			}
			fire = timer.C
		case <-fire:
			timer, fire = nil, nil
			d.logger.Info("key directory changed", zap.String("dir", d.root))
			onChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn("key directory watcher error", zap.Error(err))
		}
	}
}
