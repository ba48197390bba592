package tasks

import (
	"cmp"
	"slices"
	"sync"

	"github.com/desertthunder/genrefy/internal/models"
)

type trackRef struct {
	seq int
	id  string
}

type artistEntry struct {
	name     string
	tracks   []trackRef
	genres   []string
	resolved bool
}

// ArtistIndex maps artist ids to the saved tracks they contributed and their resolved genres.
//
// One mutex guards the whole map; every method is safe for concurrent use.
type ArtistIndex struct {
	mu      sync.Mutex
	artists map[string]*artistEntry
}

func NewArtistIndex() *ArtistIndex {
	return &ArtistIndex{artists: make(map[string]*artistEntry)}
}

// Add appends the entry's track to its artist, creating the artist on first sight.
// It reports whether this call created the artist.
func (x *ArtistIndex) Add(e models.SavedEntry) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	a, ok := x.artists[e.ArtistID]
	if !ok {
		a = &artistEntry{name: e.ArtistName}
		x.artists[e.ArtistID] = a
	}
	a.tracks = append(a.tracks, trackRef{seq: e.Seq, id: e.TrackID})
	return !ok
}

// SetGenres records the resolved genres of a known artist.
func (x *ArtistIndex) SetGenres(artistID string, genres []string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if a, ok := x.artists[artistID]; ok {
		a.genres = slices.Clone(genres)
		a.resolved = true
	}
}

// Len returns the number of artists.
func (x *ArtistIndex) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.artists)
}

// TrackCount sums the tracks across all artists.
func (x *ArtistIndex) TrackCount() int {
	x.mu.Lock()
	defer x.mu.Unlock()

	n := 0
	for _, a := range x.artists {
		n += len(a.tracks)
	}
	return n
}

// Unresolved lists artists whose genres were never set, sorted by id.
func (x *ArtistIndex) Unresolved() []string {
	x.mu.Lock()
	defer x.mu.Unlock()

	var ids []string
	for id, a := range x.artists {
		if !a.resolved {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Records snapshots the index sorted by artist id, each artist's tracks in library order.
func (x *ArtistIndex) Records() []models.ArtistRecord {
	x.mu.Lock()
	defer x.mu.Unlock()

	records := make([]models.ArtistRecord, 0, len(x.artists))
	for id, a := range x.artists {
		refs := slices.SortedFunc(slices.Values(a.tracks), func(l, r trackRef) int {
			return cmp.Compare(l.seq, r.seq)
		})

		tracks := make([]string, len(refs))
		for i, ref := range refs {
			tracks[i] = ref.id
		}

		genres := slices.Clone(a.genres)
		if genres == nil {
			genres = []string{}
		}
		records = append(records, models.ArtistRecord{ID: id, Name: a.name, Genres: genres, Tracks: tracks})
	}

	slices.SortFunc(records, func(l, r models.ArtistRecord) int { return cmp.Compare(l.ID, r.ID) })
	return records
}
