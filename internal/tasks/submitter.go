package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/genrefy/internal/models"
	"github.com/desertthunder/genrefy/internal/services"
	"github.com/desertthunder/genrefy/internal/shared"
)

// SubmitOpts configures playlist creation.
type SubmitOpts struct {
	BatchSize int // 1..[shared.MaxBatchSize], 0 for the maximum
	Public    bool
}

// BatchFailure records one "add items" call that failed.
type BatchFailure struct {
	Index int // zero-based batch position
	Size  int
	Err   error
}

// SubmitResult describes a created playlist and how its batches fared.
type SubmitResult struct {
	Playlist  *models.Playlist
	Genre     string
	Tracks    int
	Batches   int
	Submitted int // tracks in successful batches
	Failures  []BatchFailure
}

// PlaylistName is the name given to the playlist created for genre.
func PlaylistName(genre string) string {
	return genre + " · liked songs"
}

func playlistDescription(genre string, at time.Time) string {
	return fmt.Sprintf("Liked songs tagged %q, collected on %s", genre, at.Format(time.DateOnly))
}

// Submitter creates a genre playlist and fills it batch by batch.
type Submitter struct {
	lib    services.Library
	logger *log.Logger
	now    func() time.Time
}

func NewSubmitter(lib services.Library, logger *log.Logger) *Submitter {
	return &Submitter{lib: lib, logger: orDiscard(logger), now: time.Now}
}

// Submit creates a playlist for genre and appends ids to it in order.
//
// Nothing is created for an empty selection. A failed batch is logged and skipped; the
// playlist and the other batches are kept and the failures are reported with
// [shared.ErrPartialBatch] alongside the result.
func (s *Submitter) Submit(ctx context.Context, progress chan<- ProgressUpdate, genre string, ids []string, opts SubmitOpts) (*SubmitResult, error) {
	if len(ids) == 0 {
		return nil, &shared.OpError{Op: "create playlist", Err: fmt.Errorf("%w: genre %q has no tracks", shared.ErrInvalidInput, genre)}
	}

	size := opts.BatchSize
	if size == 0 {
		size = shared.MaxBatchSize
	}
	if size < 1 || size > shared.MaxBatchSize {
		return nil, fmt.Errorf("%w: batch size must be between 1 and %d, got %d", shared.ErrInvalidArgument, shared.MaxBatchSize, opts.BatchSize)
	}

	user, err := s.lib.CurrentUser(ctx)
	if err != nil {
		return nil, &shared.OpError{Op: "fetch current user", Err: err}
	}

	name := PlaylistName(genre)
	playlist, err := s.lib.CreatePlaylist(ctx, user.ID, name, playlistDescription(genre, s.now()), opts.Public)
	if err != nil {
		return nil, &shared.OpError{Op: "create playlist", Err: fmt.Errorf("%w: %w", shared.ErrPlaylistCreate, err)}
	}
	s.logger.Info("playlist created", "id", playlist.ID, "name", playlist.Name, "genre", genre)
	sendProgress(progress, createPlaylistUpdate(playlist))

	batches := Batches(ids, size)
	result := &SubmitResult{Playlist: playlist, Genre: genre, Tracks: len(ids), Batches: len(batches)}

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return result, &shared.OpError{Op: "add items", Err: err}
		}

		err := s.lib.AddItems(ctx, playlist.ID, batch)
		sendProgress(progress, batchUpdate(i+1, len(batches), len(batch), err))
		if err != nil {
			s.logger.Error("batch failed", "playlist", playlist.ID, "batch", i+1, "of", len(batches), "size", len(batch), "err", err)
			result.Failures = append(result.Failures, BatchFailure{Index: i, Size: len(batch), Err: err})
			continue
		}
		result.Submitted += len(batch)
		s.logger.Debug("batch submitted", "playlist", playlist.ID, "batch", i+1, "size", len(batch))
	}

	if n := len(result.Failures); n > 0 {
		return result, &shared.OpError{
			Op:  "add items",
			Err: fmt.Errorf("%w: %d of %d batches failed, first: %v", shared.ErrPartialBatch, n, len(batches), result.Failures[0].Err),
		}
	}
	return result, nil
}
