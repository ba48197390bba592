// package models defines the data model shared by the genre pipeline
package models

import (
	"slices"
	"time"
)

// UnknownGenre is the bucket for tracks whose primary artist carries no genre tags.
const UnknownGenre = "unknown genre"

// Track is one saved track as returned by the library endpoint.
type Track struct {
	ID          string
	Name        string
	ArtistIDs   []string // ordered as listed upstream; only the first is consulted
	ArtistNames []string
	Album       string
	AddedAt     time.Time
}

// PrimaryArtistID returns the first listed artist id, or "".
func (t Track) PrimaryArtistID() string {
	if len(t.ArtistIDs) == 0 {
		return ""
	}
	return t.ArtistIDs[0]
}

// PrimaryArtistName returns the first listed artist name, or "".
func (t Track) PrimaryArtistName() string {
	if len(t.ArtistNames) == 0 {
		return ""
	}
	return t.ArtistNames[0]
}

// Artist is an artist with its upstream genre labels.
type Artist struct {
	ID     string
	Name   string
	Genres []string
}

// SavedEntry is a fetched track paired with its primary artist.
//
// Seq is the track's position in the saved library, starting at 0.
type SavedEntry struct {
	Seq        int
	TrackID    string
	TrackName  string
	ArtistID   string
	ArtistName string
}

// EntryFromTrack builds the entry for t at position seq. ok is false when t has no id or no artist.
func EntryFromTrack(seq int, t Track) (entry SavedEntry, ok bool) {
	if t.ID == "" || t.PrimaryArtistID() == "" {
		return SavedEntry{}, false
	}
	return SavedEntry{
		Seq:        seq,
		TrackID:    t.ID,
		TrackName:  t.Name,
		ArtistID:   t.PrimaryArtistID(),
		ArtistName: t.PrimaryArtistName(),
	}, true
}

// ArtistRecord is one element of a cached snapshot: an artist, its genres and the saved tracks it contributed.
type ArtistRecord struct {
	ID     string   `json:"id"`
	Name   string   `json:"name,omitempty"`
	Genres []string `json:"genres"`
	Tracks []string `json:"tracks"`
}

// Equal compares records by id, genre set and track set.
func (r ArtistRecord) Equal(o ArtistRecord) bool {
	return r.ID == o.ID && sameSet(r.Genres, o.Genres) && sameSet(r.Tracks, o.Tracks)
}

func sameSet(a, b []string) bool {
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(slices.Compact(x), slices.Compact(y))
}

// TrackPage is one page of the saved-tracks listing.
type TrackPage struct {
	Tracks []Track
	Offset int
	Total  int
	Next   bool
}

// User is the authenticated account.
type User struct {
	ID          string
	DisplayName string
}

// Playlist is a playlist created for a genre.
type Playlist struct {
	ID          string
	Name        string
	Description string
	URI         string
	Public      bool
}

// GenreCount is one row of the per-genre summary.
type GenreCount struct {
	Genre  string `json:"genre"`
	Tracks int    `json:"tracks"`
}

// RunStatus is the outcome of a playlist creation run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// PlaylistRun is the history record of one `create` invocation.
type PlaylistRun struct {
	ID            string    `json:"id"`
	Genre         string    `json:"genre"`
	PlaylistID    string    `json:"playlist_id"`
	PlaylistName  string    `json:"playlist_name"`
	TrackCount    int       `json:"tracks"`
	BatchCount    int       `json:"batches"`
	FailedBatches int       `json:"failed_batches"`
	Status        RunStatus `json:"status"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// BatchPlan describes the playlist a `create --dry-run` would produce.
type BatchPlan struct {
	Genre        string `json:"genre"`
	PlaylistName string `json:"playlist_name"`
	TrackCount   int    `json:"tracks"`
	BatchSizes   []int  `json:"batches"`
}
