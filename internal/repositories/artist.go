package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/genrefy/internal/models"
	"github.com/desertthunder/genrefy/internal/shared"
	"github.com/desertthunder/genrefy/internal/snapshot"
)

// ArtistRepository stores the artist snapshot in the artists and artist_tracks tables.
type ArtistRepository struct {
	db *sql.DB
}

var _ snapshot.Store = (*ArtistRepository)(nil)

// NewArtistRepository creates a new ArtistRepository with the given database connection
func NewArtistRepository(db *sql.DB) *ArtistRepository {
	return &ArtistRepository{db: db}
}

func (r *ArtistRepository) Describe() string {
	return "sqlite artists table"
}

// Load reads the snapshot in the order it was saved.
func (r *ArtistRepository) Load(ctx context.Context) ([]models.ArtistRecord, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT artist_count FROM snapshot_meta WHERE id = 1").Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no snapshot saved in database", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot metadata: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, "SELECT id, name, genres FROM artists ORDER BY position, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query artists: %w", err)
	}
	defer rows.Close()

	records := []models.ArtistRecord{}
	index := make(map[string]int)
	for rows.Next() {
		record, err := scanArtist(rows)
		if err != nil {
			return nil, err
		}
		index[record.ID] = len(records)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate artists: %w", err)
	}

	if len(records) != count {
		return nil, fmt.Errorf("%w: expected %d artists, found %d", shared.ErrCorruptData, count, len(records))
	}

	if err := r.loadTracks(ctx, records, index); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *ArtistRepository) loadTracks(ctx context.Context, records []models.ArtistRecord, index map[string]int) error {
	rows, err := r.db.QueryContext(ctx, "SELECT artist_id, track_id FROM artist_tracks ORDER BY artist_id, seq")
	if err != nil {
		return fmt.Errorf("failed to query artist tracks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var artistID, trackID string
		if err := rows.Scan(&artistID, &trackID); err != nil {
			return fmt.Errorf("failed to scan artist track: %w", err)
		}
		i, ok := index[artistID]
		if !ok {
			return fmt.Errorf("%w: track %s references unknown artist %s", shared.ErrCorruptData, trackID, artistID)
		}
		records[i].Tracks = append(records[i].Tracks, trackID)
	}
	return rows.Err()
}

// Save replaces the stored snapshot with records in one transaction.
func (r *ArtistRepository) Save(ctx context.Context, records []models.ArtistRecord) error {
	if err := snapshot.Validate(records); err != nil {
		return err
	}

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := clearSnapshot(ctx, tx); err != nil {
			return err
		}

		artistStmt, err := tx.PrepareContext(ctx, "INSERT INTO artists (id, name, genres, position, updated_at) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare artist insert: %w", err)
		}
		defer artistStmt.Close()

		trackStmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO artist_tracks (artist_id, track_id, seq) VALUES (?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare track insert: %w", err)
		}
		defer trackStmt.Close()

		now := time.Now().UTC()
		for pos, record := range records {
			genres := record.Genres
			if genres == nil {
				genres = []string{}
			}
			encoded, err := json.Marshal(genres)
			if err != nil {
				return fmt.Errorf("failed to encode genres for %s: %w", record.ID, err)
			}

			if _, err := artistStmt.ExecContext(ctx, record.ID, record.Name, string(encoded), pos, now); err != nil {
				return fmt.Errorf("failed to insert artist %s: %w", record.ID, err)
			}

			for seq, trackID := range record.Tracks {
				if _, err := trackStmt.ExecContext(ctx, record.ID, trackID, seq); err != nil {
					return fmt.Errorf("failed to insert track %s: %w", trackID, err)
				}
			}
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO snapshot_meta (id, artist_count, saved_at) VALUES (1, ?, ?)", len(records), now,
		); err != nil {
			return fmt.Errorf("failed to record snapshot metadata: %w", err)
		}
		return nil
	})
}

// Clear deletes the stored snapshot.
func (r *ArtistRepository) Clear(ctx context.Context) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		return clearSnapshot(ctx, tx)
	})
}

// SavedAt reports when the snapshot was written.
func (r *ArtistRepository) SavedAt(ctx context.Context) (time.Time, error) {
	var savedAt time.Time
	err := r.db.QueryRowContext(ctx, "SELECT saved_at FROM snapshot_meta WHERE id = 1").Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("%w: no snapshot saved in database", shared.ErrNotFound)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read snapshot metadata: %w", err)
	}
	return savedAt, nil
}

func clearSnapshot(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range []string{
		"DELETE FROM artist_tracks",
		"DELETE FROM artists",
		"DELETE FROM snapshot_meta",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to clear snapshot: %w", err)
		}
	}
	return nil
}

func scanArtist(row scanner) (models.ArtistRecord, error) {
	var (
		record models.ArtistRecord
		genres string
	)
	if err := row.Scan(&record.ID, &record.Name, &genres); err != nil {
		return record, fmt.Errorf("failed to scan artist: %w", err)
	}
	if err := json.Unmarshal([]byte(genres), &record.Genres); err != nil {
		return record, fmt.Errorf("%w: genres of artist %s: %v", shared.ErrCorruptData, record.ID, err)
	}
	if record.Genres == nil {
		record.Genres = []string{}
	}
	record.Tracks = []string{}
	return record, nil
}
