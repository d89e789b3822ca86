package names

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// FileStore persists a Directory as a JSON object of id -> name.
type FileStore struct {
	path string
}

// NewFileStore creates a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load replaces the directory content with the file content. A missing file
// leaves the directory empty and is not an error.
func (s *FileStore) Load(d *Directory) error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read names file: %w", err)
	}

	entries := make(map[string]string)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("failed to decode names file: %w", err)
		}
	}
	d.Replace(entries)
	return nil
}

// Save writes the directory to a temp file and renames it over the target.
func (s *FileStore) Save(d *Directory) error {
	data, err := json.MarshalIndent(d.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode names: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create names dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".names-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write names: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace names file: %w", err)
	}
	return nil
}

// Flusher saves a directory periodically and once more on shutdown.
type Flusher struct {
	dir   *Directory
	store *FileStore
}

// NewFlusher creates a Flusher.
func NewFlusher(dir *Directory, store *FileStore) *Flusher {
	return &Flusher{dir: dir, store: store}
}

// Run saves every interval until ctx is done, then saves a final time.
// Save failures are logged and never stop the loop.
func (f *Flusher) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.flush()
			return nil
		case <-ticker.C:
			f.flush()
		}
	}
}

func (f *Flusher) flush() {
	if err := f.store.Save(f.dir); err != nil {
		log.Error().Err(err).Str("file", f.store.Path()).Msg("Failed to save name directory")
		return
	}
	log.Debug().Int("entries", f.dir.Len()).Msg("Name directory saved")
}
