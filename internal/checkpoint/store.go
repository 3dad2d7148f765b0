// Package checkpoint persists the furthest byte offset of the active job
// that is known to have been executed.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrZeroOffset is returned by Save for an offset of 0, which never marks progress.
var ErrZeroOffset = errors.New("checkpoint offset must be positive")

// FileName is the checkpoint file name inside the data directory.
const FileName = "progress.txt"

// Store persists a single resume offset.
type Store interface {
	// Load returns the stored offset. Any problem reading it (missing file,
	// garbage, I/O error) is reported as no checkpoint.
	Load() (uint64, bool)
	// Save replaces the stored offset.
	Save(offset uint64) error
	// Clear returns the store to its initial empty state.
	Clear() error
	// Path is the backing file.
	Path() string
}

// diskStore keeps the offset as a decimal string in a plain-text file.
type diskStore struct {
	path string
}

// NewStore returns a Store backed by the file at path, creating its directory.
func NewStore(path string) (Store, error) {
	if path == "" {
		return nil, errors.New("checkpoint path must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving checkpoint path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("creating checkpoint directory: %w", err)
	}
	return &diskStore{path: abs}, nil
}

// DefaultPath returns $XDG_DATA_HOME/printrescue/progress.txt, falling back
// to ~/.local/share when XDG_DATA_HOME is unset.
func DefaultPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// DataDir returns the printrescue-specific XDG data directory.
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "printrescue"), nil
}

func (d *diskStore) Path() string {
	return d.path
}

func (d *diskStore) Load() (uint64, bool) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return 0, false
	}
	return parse(data)
}

func parse(data []byte) (uint64, bool) {
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// Save writes the offset atomically via a temp file + os.Rename.
func (d *diskStore) Save(offset uint64) error {
	if offset == 0 {
		return ErrZeroOffset
	}

	// Write to a temp file in the same directory so os.Rename is atomic.
	tmp, err := os.CreateTemp(filepath.Dir(d.path), "progress-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to persist checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.WriteString(strconv.FormatUint(offset, 10)); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to persist checkpoint: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to persist checkpoint: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to persist checkpoint: %w", err)
	}
	if err = os.Rename(tmpName, d.path); err != nil {
		return fmt.Errorf("failed to persist checkpoint: %w", err)
	}
	return nil
}

// Clear removes the checkpoint file. A missing file is not an error.
func (d *diskStore) Clear() error {
	if err := os.Remove(d.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	return nil
}
