package tasks

import (
	"fmt"

	"github.com/desertthunder/genrefy/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase, 0 when unknown
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	LoadSnapshot Phase = iota
	FetchTracks
	ResolveArtists
	SaveSnapshot
	GroupGenres
	CreatePlaylist
	SubmitBatches
)

func (p Phase) String() string {
	switch p {
	case LoadSnapshot:
		return "load_snapshot"
	case FetchTracks:
		return "fetch_tracks"
	case ResolveArtists:
		return "resolve_artists"
	case SaveSnapshot:
		return "save_snapshot"
	case GroupGenres:
		return "group_genres"
	case CreatePlaylist:
		return "create_playlist"
	case SubmitBatches:
		return "submit_batches"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func loadedSnapshotUpdate(where string, artists int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LoadSnapshot,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Loaded %d artists from %s", artists, where),
	}
}

func fetchPageUpdate(fetched, total, page int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTracks,
		Step:    fetched,
		Total:   total,
		Message: fmt.Sprintf("Fetched page %d (%d saved tracks so far)", page, fetched),
	}
}

func savedTrackUpdate(step int, e models.SavedEntry) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveArtists,
		Step:    step,
		Message: fmt.Sprintf("[%d] %s (artist %s)", e.Seq+1, e.TrackName, e.ArtistID),
		Data:    e,
	}
}

func resolvedArtistUpdate(artists int, id string, genres []string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveArtists,
		Step:    artists,
		Message: fmt.Sprintf("Artist %s: %d genres", id, len(genres)),
	}
}

func savedSnapshotUpdate(where string, artists int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SaveSnapshot,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Saved %d artists to %s", artists, where),
	}
}

func groupedUpdate(genres int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   GroupGenres,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Grouped tracks into %d genres", genres),
	}
}

func createPlaylistUpdate(pl *models.Playlist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Playlist created: %s (ID: %s)", pl.Name, pl.ID),
		Data:    pl,
	}
}

func batchUpdate(step, total, size int, err error) ProgressUpdate {
	if err != nil {
		return ProgressUpdate{
			Phase:   SubmitBatches,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("[%d/%d] ✗ %d tracks: %v", step, total, size, err),
		}
	}
	return ProgressUpdate{
		Phase:   SubmitBatches,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %d tracks", step, total, size),
	}
}
