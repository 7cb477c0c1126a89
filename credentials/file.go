package credentials

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/fsnotify/fsnotify"
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// FileStorage stores each key as <dir>/<key>.json. Writes go through a
// temporary file and a rename so readers never observe a partial value.
type FileStorage struct {
	dir string
}

// NewFileStorage creates dir (0700) if needed and returns a FileStorage
// rooted there.
func NewFileStorage(dir string) (*FileStorage, error) {
	if dir == "" {
		return nil, errors.New("credential directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}
	return &FileStorage{dir: dir}, nil
}

// Path returns the file that holds key.
func (f *FileStorage) Path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

func (f *FileStorage) GetItem(key string) ([]byte, error) {
	if !validKey.MatchString(key) {
		return nil, fmt.Errorf("invalid credential key %q", key)
	}
	data, err := os.ReadFile(f.Path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (f *FileStorage) SetItem(key string, value []byte) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("invalid credential key %q", key)
	}

	tmp, err := os.CreateTemp(f.dir, "."+key+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Rename(tmpName, f.Path(key)); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}

func (f *FileStorage) RemoveItem(key string) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("invalid credential key %q", key)
	}
	if err := os.Remove(f.Path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Watch calls onChange whenever the file for key is created, rewritten or
// removed, including by another process. It returns once the watch is in
// place; watching stops when ctx is cancelled.
func (f *FileStorage) Watch(ctx context.Context, key string, onChange func()) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("invalid credential key %q", key)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	// The directory is watched rather than the file: SetItem replaces the
	// file by rename, which would drop a watch on the file itself.
	if err := watcher.Add(f.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", f.dir, err)
	}

	target := filepath.Clean(f.Path(key))
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
					event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					slog.Debug("Credential file changed", "path", target, "op", event.Op.String())
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Credential file watcher error", "path", target, "error", err)
			}
		}
	}()

	return nil
}
