package tasks

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/desertthunder/genrefy/internal/models"
	"github.com/desertthunder/genrefy/internal/shared"
)

// GenreIndex maps genre labels to the saved track ids filed under them.
//
// Labels keep the order in which they were first seen; each label's tracks are de-duplicated
// and keep insertion order. A GenreIndex is built once and only read afterwards.
type GenreIndex struct {
	order      []string
	tracks     map[string][]string
	seen       map[string]map[string]struct{}
	normalized map[string]string
}

// BuildGenreIndex files every artist's tracks under each of its genres, or under
// [models.UnknownGenre] when it has none. Artists are visited in id order.
func BuildGenreIndex(records []models.ArtistRecord) *GenreIndex {
	x := &GenreIndex{
		tracks:     make(map[string][]string),
		seen:       make(map[string]map[string]struct{}),
		normalized: make(map[string]string),
	}

	sorted := slices.SortedFunc(slices.Values(records), func(l, r models.ArtistRecord) int {
		return cmp.Compare(l.ID, r.ID)
	})

	for _, r := range sorted {
		genres := slices.DeleteFunc(slices.Clone(r.Genres), func(g string) bool {
			return strings.TrimSpace(g) == ""
		})
		if len(genres) == 0 {
			genres = []string{models.UnknownGenre}
		}
		for _, g := range genres {
			x.add(g, r.Tracks)
		}
	}
	return x
}

func (x *GenreIndex) add(genre string, ids []string) {
	seen, ok := x.seen[genre]
	if !ok {
		seen = make(map[string]struct{})
		x.seen[genre] = seen
		x.order = append(x.order, genre)
		if _, taken := x.normalized[shared.NormalizeGenre(genre)]; !taken {
			x.normalized[shared.NormalizeGenre(genre)] = genre
		}
	}

	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		x.tracks[genre] = append(x.tracks[genre], id)
	}
}

// Len returns the number of genres.
func (x *GenreIndex) Len() int {
	return len(x.order)
}

// Genres returns the labels in first-seen order.
func (x *GenreIndex) Genres() []string {
	return slices.Clone(x.order)
}

// Lookup resolves label to the indexed spelling, matching exactly first and then
// case- and whitespace-insensitively.
func (x *GenreIndex) Lookup(label string) (string, bool) {
	if _, ok := x.tracks[label]; ok {
		return label, true
	}
	if _, ok := x.seen[label]; ok {
		return label, true
	}
	g, ok := x.normalized[shared.NormalizeGenre(label)]
	return g, ok
}

// Has reports whether label resolves to an indexed genre.
func (x *GenreIndex) Has(label string) bool {
	_, ok := x.Lookup(label)
	return ok
}

// Tracks returns a copy of the track ids filed under label.
func (x *GenreIndex) Tracks(label string) ([]string, error) {
	_, ids, err := x.Select(label)
	return ids, err
}

// Select resolves label and returns the indexed spelling with a copy of its tracks.
func (x *GenreIndex) Select(label string) (string, []string, error) {
	if strings.TrimSpace(label) == "" {
		return "", nil, fmt.Errorf("%w: empty genre", shared.ErrInvalidInput)
	}
	g, ok := x.Lookup(label)
	if !ok {
		return "", nil, fmt.Errorf("%w: genre %q", shared.ErrNotFound, label)
	}
	ids := slices.Clone(x.tracks[g])
	if ids == nil {
		ids = []string{}
	}
	return g, ids, nil
}

// Counts returns one row per genre, largest first, ties broken by label.
func (x *GenreIndex) Counts() []models.GenreCount {
	counts := make([]models.GenreCount, 0, len(x.order))
	for _, g := range x.order {
		counts = append(counts, models.GenreCount{Genre: g, Tracks: len(x.tracks[g])})
	}
	slices.SortStableFunc(counts, func(l, r models.GenreCount) int {
		if c := cmp.Compare(r.Tracks, l.Tracks); c != 0 {
			return c
		}
		return cmp.Compare(l.Genre, r.Genre)
	})
	return counts
}

// Batches splits ids into consecutive chunks of at most size ids.
//
// size outside 1..[shared.MaxBatchSize] is treated as [shared.MaxBatchSize]. No ids yields no batches.
func Batches(ids []string, size int) [][]string {
	if size < 1 || size > shared.MaxBatchSize {
		size = shared.MaxBatchSize
	}
	return slices.Collect(slices.Chunk(ids, size))
}
