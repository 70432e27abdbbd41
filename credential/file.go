package credential

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps the token in a file readable only by the current user.
// Writes go through a temp file and rename so a crash never leaves a torn
// token behind.
type FileStore struct {
	path string
}

// NewFileStore stores the token at path, creating parent directories on the
// first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the location of the slot.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Save(_ context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("credential dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".credential-*")
	if err != nil {
		return fmt.Errorf("credential temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("credential chmod: %w", err)
	}
	if _, err := tmp.WriteString(token); err != nil {
		tmp.Close()
		return fmt.Errorf("credential write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credential sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credential close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("credential rename: %w", err)
	}
	return nil
}

func (f *FileStore) Read(_ context.Context) (string, bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("credential read: %w", err)
	}
	token := strings.TrimSpace(string(data))
	return token, token != "", nil
}

func (f *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("credential clear: %w", err)
	}
	return nil
}
