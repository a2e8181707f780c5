// Package vault owns the on-disk layout of documents: one directory per
// group, one markdown file per report, collision-free names.
package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

const maxCreateAttempts = 16

// ErrNotFound is returned when appending to a document that does not exist.
var ErrNotFound = errors.New("document not found")

// Vault writes documents under a root directory.
type Vault struct {
	root   string
	logger *slog.Logger
}

func New(root string, logger *slog.Logger) *Vault {
	if logger == nil {
		logger = slog.Default()
	}
	return &Vault{root: root, logger: logger}
}

// Root returns the vault directory.
func (v *Vault) Root() string { return v.root }

// GroupDir returns the directory for a group title. The directory is not created.
func (v *Vault) GroupDir(title string) (string, error) {
	return within(v.root, SafeGroupDir(title))
}

// Create writes content to a new file named after base (plus ".md") in dir.
// An existing file is never overwritten: the name gets a -N suffix instead.
// It returns the path actually written.
func (v *Vault) Create(dir, base, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create group dir: %w", err)
	}

	desired := base + ".md"
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		name, err := UniqueFilename(dir, desired)
		if err != nil {
			return "", err
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue // lost a race for the name; try the next one
		}
		if err != nil {
			return "", fmt.Errorf("create document: %w", err)
		}
		if _, err := f.WriteString(content); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("write document: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("close document: %w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("create document %s: no free name after %d attempts", desired, maxCreateAttempts)
}

// Append adds content to the end of an existing document.
func (v *Vault) Append(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("append %s: %w", path, ErrNotFound)
		}
		return fmt.Errorf("open for append: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return fmt.Errorf("append to %s: %w", path, err)
	}
	return f.Close()
}
