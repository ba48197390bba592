// package services adapts the Spotify Web API to the subset used by the genre pipeline
package services

import (
	"context"
	"iter"

	"github.com/desertthunder/genrefy/internal/models"
)

// Library is the upstream surface the pipeline depends on.
//
// Errors returned by implementations wrap one of the shared upstream sentinels
// (auth failure, not found, rate limited, transient) so callers can classify them with errors.Is.
type Library interface {
	// CurrentUser returns the authenticated account.
	CurrentUser(ctx context.Context) (*models.User, error)

	// SavedTracks returns one page of saved tracks starting at offset.
	SavedTracks(ctx context.Context, limit, offset int) (*models.TrackPage, error)

	// SavedTrackPages follows the upstream's next links from the first page until exhausted.
	// The sequence ends after yielding an error.
	SavedTrackPages(ctx context.Context, pageSize int) iter.Seq2[*models.TrackPage, error]

	// Artist returns an artist with its genre labels.
	Artist(ctx context.Context, artistID string) (*models.Artist, error)

	// CreatePlaylist creates an empty playlist owned by userID.
	CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (*models.Playlist, error)

	// AddItems appends at most [shared.MaxBatchSize] tracks to a playlist in one request.
	AddItems(ctx context.Context, playlistID string, trackIDs []string) error
}
