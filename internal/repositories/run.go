package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/genrefy/internal/models"
	"github.com/desertthunder/genrefy/internal/shared"
)

// RunRepository records playlists created by `genrefy create`.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// RecordRun inserts run, assigning an id and timestamp when unset.
func (r *RunRepository) RecordRun(ctx context.Context, run *models.PlaylistRun) error {
	if run.Genre == "" {
		return fmt.Errorf("%w: run has no genre", shared.ErrInvalidInput)
	}
	switch run.Status {
	case models.RunCompleted, models.RunPartial, models.RunFailed:
	default:
		return fmt.Errorf("%w: unknown run status %q", shared.ErrInvalidInput, run.Status)
	}

	if run.ID == "" {
		run.ID = shared.GenerateID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO playlist_runs (
			id, genre, playlist_id, playlist_name, track_count,
			batch_count, failed_batches, status, error, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Genre,
		run.PlaylistID,
		run.PlaylistName,
		run.TrackCount,
		run.BatchCount,
		run.FailedBatches,
		string(run.Status),
		run.Error,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Get retrieves a run by id.
func (r *RunRepository) Get(ctx context.Context, id string) (*models.PlaylistRun, error) {
	row := r.db.QueryRowContext(ctx, selectRuns+" WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns the most recent runs first. limit <= 0 returns every run.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*models.PlaylistRun, error) {
	query := selectRuns + " ORDER BY created_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.PlaylistRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

const selectRuns = `
	SELECT id, genre, playlist_id, playlist_name, track_count,
		batch_count, failed_batches, status, error, created_at
	FROM playlist_runs`

func scanRun(row scanner) (*models.PlaylistRun, error) {
	var (
		run    models.PlaylistRun
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.Genre,
		&run.PlaylistID,
		&run.PlaylistName,
		&run.TrackCount,
		&run.BatchCount,
		&run.FailedBatches,
		&status,
		&run.Error,
		&run.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.Status = models.RunStatus(status)
	return &run, nil
}
