package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"pricewatch/internal/tracking"
)

// DefaultFilePath matches the layout of the original products file.
const DefaultFilePath = "data/products.json"

// FileStore keeps the collection in a single JSON file. Save writes a temp file
// in the same directory and renames it over the target.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path, or DefaultFilePath when empty.
// The file is created on the first Save.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultFilePath
	}
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Load returns an empty collection when the file does not exist yet.
func (s *FileStore) Load(ctx context.Context) ([]tracking.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []tracking.Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return decodeItems(data)
}

// Save writes a temp file next to the target and renames it into place.
func (s *FileStore) Save(ctx context.Context, items []tracking.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(nonNil(items), "", "  ")
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
