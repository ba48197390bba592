package tasks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/desertthunder/genrefy/internal/models"
	"github.com/desertthunder/genrefy/internal/shared"
	tu "github.com/desertthunder/genrefy/internal/testing"
)

func newTestAggregator(lib *tu.FakeLibrary, concurrency int) *Aggregator {
	resolver := NewResolver(lib, DefaultRetryPolicy(), nil, WithSleeper(noSleep))
	return NewAggregator(resolver, concurrency, nil)
}

func TestArtistIndex(t *testing.T) {
	x := NewArtistIndex()
	entries := []models.SavedEntry{
		{Seq: 0, TrackID: "t1", ArtistID: "b", ArtistName: "B"},
		{Seq: 2, TrackID: "t3", ArtistID: "a", ArtistName: "A"},
		{Seq: 1, TrackID: "t2", ArtistID: "b", ArtistName: "B"},
	}

	var created []bool
	for _, e := range entries {
		created = append(created, x.Add(e))
	}
	if !slices.Equal(created, []bool{true, true, false}) {
		t.Errorf("Add results = %v", created)
	}

	if x.Len() != 2 || x.TrackCount() != 3 {
		t.Errorf("expected 2 artists and 3 tracks, got %d and %d", x.Len(), x.TrackCount())
	}
	if got := x.Unresolved(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Unresolved() = %v", got)
	}

	x.SetGenres("b", []string{"rock"})
	x.SetGenres("unknown", []string{"ignored"})
	if got := x.Unresolved(); !slices.Equal(got, []string{"a"}) {
		t.Errorf("Unresolved() = %v", got)
	}

	records := x.Records()
	if len(records) != 2 || records[0].ID != "a" || records[1].ID != "b" {
		t.Fatalf("unexpected records %+v", records)
	}
	if records[0].Genres == nil || len(records[0].Genres) != 0 {
		t.Errorf("expected empty genres for unresolved artist, got %#v", records[0].Genres)
	}
	if !slices.Equal(records[1].Tracks, []string{"t1", "t2"}) {
		t.Errorf("expected tracks in library order, got %v", records[1].Tracks)
	}
	if records[1].Name != "B" {
		t.Errorf("expected artist name B, got %q", records[1].Name)
	}
}

func TestAggregator(t *testing.T) {
	ctx := context.Background()

	t.Run("Every Fetched Track Lands In One Bucket", func(t *testing.T) {
		lib := tu.NewFakeLibrary()
		for i, n := range []int{40, 60, 50, 70, 30} {
			lib.AddArtist(fmt.Sprintf("a%d", i), fmt.Sprintf("Artist %d", i), []string{fmt.Sprintf("genre %d", i)}, n)
		}

		fetcher := NewFetcher(lib, FetchOpts{Strategy: StrategyStream, PageSize: 50}, nil)
		result, err := newTestAggregator(lib, 4).Aggregate(ctx, nil, fetcher)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.Entries != 250 || result.Index.TrackCount() != 250 {
			t.Errorf("expected 250 entries and tracks, got %d and %d", result.Entries, result.Index.TrackCount())
		}
		if result.Index.Len() != 5 || result.Artists != 5 {
			t.Errorf("expected 5 artists, got %d (%d resolved)", result.Index.Len(), result.Artists)
		}
		for id := range lib.Artists {
			if calls := lib.ArtistCalls(id); calls != 1 {
				t.Errorf("artist %s looked up %d times", id, calls)
			}
		}
		if len(result.Index.Unresolved()) != 0 {
			t.Errorf("unresolved artists: %v", result.Index.Unresolved())
		}
	})

	t.Run("Concurrency Bound", func(t *testing.T) {
		lib := tu.NewFakeLibrary()
		lib.ArtistDelay = 5 * time.Millisecond
		for i := range 20 {
			lib.AddArtist(fmt.Sprintf("a%02d", i), "Artist", []string{"pop"}, 1)
		}

		fetcher := NewFetcher(lib, FetchOpts{PageSize: 50}, nil)
		if _, err := newTestAggregator(lib, 3).Aggregate(ctx, nil, fetcher); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := lib.MaxInFlight(); got < 1 || got > 3 {
			t.Errorf("expected at most 3 concurrent lookups, saw %d", got)
		}
	})

	t.Run("Unbounded", func(t *testing.T) {
		lib := tu.NewFakeLibrary()
		for i := range 10 {
			lib.AddArtist(fmt.Sprintf("a%02d", i), "Artist", []string{"pop"}, 2)
		}

		fetcher := NewFetcher(lib, FetchOpts{PageSize: 50}, nil)
		result, err := newTestAggregator(lib, 0).Aggregate(ctx, nil, fetcher)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Index.TrackCount() != 20 {
			t.Errorf("expected 20 tracks, got %d", result.Index.TrackCount())
		}
	})

	t.Run("Unknown Artist", func(t *testing.T) {
		lib := tu.NewFakeLibrary()
		lib.AddArtist("a1", "Known", []string{"folk"}, 2)
		lib.AddArtist("gone", "Deleted", nil, 3)
		delete(lib.Artists, "gone")

		fetcher := NewFetcher(lib, FetchOpts{PageSize: 50}, nil)
		result, err := newTestAggregator(lib, 2).Aggregate(ctx, nil, fetcher)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Equal(result.Missing, []string{"gone"}) {
			t.Errorf("Missing = %v", result.Missing)
		}

		records := result.Index.Records()
		if len(records) != 2 || records[1].ID != "gone" || len(records[1].Genres) != 0 || len(records[1].Tracks) != 3 {
			t.Errorf("unexpected records %+v", records)
		}
	})

	t.Run("Resolution Failure Aborts", func(t *testing.T) {
		lib := tu.NewFakeLibrary()
		for i := range 5 {
			lib.AddArtist(fmt.Sprintf("a%d", i), "Artist", []string{"pop"}, 3)
		}
		lib.ArtistErrs = map[string][]error{"a2": {shared.ErrAuthFailed}}

		fetcher := NewFetcher(lib, FetchOpts{PageSize: 5}, nil)
		_, err := newTestAggregator(lib, 2).Aggregate(ctx, nil, fetcher)
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Fatalf("expected ErrAuthFailed, got %v", err)
		}
		if op := shared.Op(err); op != "resolve genres" {
			t.Errorf("expected op %q, got %q", "resolve genres", op)
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		lib := tu.NewFakeLibrary()
		lib.AddArtist("a1", "Artist", []string{"pop"}, 3)

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		fetcher := NewFetcher(lib, FetchOpts{PageSize: 50}, nil)
		if _, err := newTestAggregator(lib, 2).Aggregate(cctx, nil, fetcher); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("Progress", func(t *testing.T) {
		lib := tu.NewFakeLibrary()
		lib.AddArtist("a1", "Artist", []string{"pop"}, 3)
		progress := make(chan ProgressUpdate, 20)

		fetcher := NewFetcher(lib, FetchOpts{PageSize: 50}, nil)
		if _, err := newTestAggregator(lib, 1).Aggregate(ctx, progress, fetcher); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		close(progress)

		counts := map[Phase]int{}
		for u := range progress {
			counts[u.Phase]++
		}
		if counts[ResolveArtists] != 4 {
			t.Errorf("expected 3 track updates and 1 artist update, got %d", counts[ResolveArtists])
		}
	})
}
