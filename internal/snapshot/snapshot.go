// package snapshot persists the artist/genre/track metadata computed by a live scan
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/desertthunder/genrefy/internal/models"
	"github.com/desertthunder/genrefy/internal/shared"
)

// Store loads and saves a snapshot of [models.ArtistRecord] values.
//
// Load fails with [shared.ErrNotFound] when no snapshot exists and with [shared.ErrCorruptData]
// when one exists but cannot be read back. Snapshots carry no freshness metadata.
type Store interface {
	Load(ctx context.Context) ([]models.ArtistRecord, error)
	Save(ctx context.Context, records []models.ArtistRecord) error
	Clear(ctx context.Context) error
	Describe() string
}

// Validate rejects records that could not have come from a scan.
func Validate(records []models.ArtistRecord) error {
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record %d has no artist id", shared.ErrCorruptData, i)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: artist %s appears twice", shared.ErrCorruptData, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}

// FileStore keeps the snapshot as a JSON array in a single file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Describe() string {
	return "file " + s.path
}

// Path returns the snapshot file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads and validates the snapshot file.
func (s *FileStore) Load(ctx context.Context) ([]models.ArtistRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: no snapshot at %s", shared.ErrNotFound, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var records []models.ArtistRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrCorruptData, s.path, err)
	}
	if records == nil {
		records = []models.ArtistRecord{}
	}

	if err := Validate(records); err != nil {
		return nil, err
	}
	return records, nil
}

// Save writes records to a temporary file next to the snapshot and renames it into place.
func (s *FileStore) Save(ctx context.Context, records []models.ArtistRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := Validate(records); err != nil {
		return err
	}
	if records == nil {
		records = []models.ArtistRecord{}
	}

	data, err := shared.MarshalJSON(records, true)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Clear deletes the snapshot file. A missing file is not an error.
func (s *FileStore) Clear(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}
	return nil
}

// Disabled is the store used when caching is turned off. It never holds a snapshot.
type Disabled struct{}

func (Disabled) Describe() string { return "disabled" }

func (Disabled) Load(context.Context) ([]models.ArtistRecord, error) {
	return nil, fmt.Errorf("%w: snapshot cache is disabled", shared.ErrNotFound)
}

func (Disabled) Save(context.Context, []models.ArtistRecord) error { return nil }

func (Disabled) Clear(context.Context) error { return nil }
