package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/genrefy/internal/models"
	"github.com/desertthunder/genrefy/internal/shared"
	"github.com/desertthunder/genrefy/internal/snapshot"
	tu "github.com/desertthunder/genrefy/internal/testing"
)

type memoryRecorder struct {
	mu   sync.Mutex
	runs []models.PlaylistRun
	err  error
}

func (m *memoryRecorder) RecordRun(ctx context.Context, run *models.PlaylistRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.runs = append(m.runs, *run)
	return nil
}

// fiveGenreLibrary holds 250 tracks by five artists with one distinct genre each.
func fiveGenreLibrary() *tu.FakeLibrary {
	lib := tu.NewFakeLibrary()
	for i, n := range []int{40, 60, 50, 70, 30} {
		lib.AddArtist(fmt.Sprintf("artist-%d", i), fmt.Sprintf("Artist %d", i), []string{fmt.Sprintf("genre-%d", i)}, n)
	}
	return lib
}

func newTestEngine(lib *tu.FakeLibrary, store snapshot.Store) *GenreEngine {
	resolver := NewResolver(lib, DefaultRetryPolicy(), nil, WithSleeper(noSleep))
	opts := EngineOpts{Fetch: FetchOpts{Strategy: StrategyStream, PageSize: 50}, Concurrency: 4}
	return NewGenreEngine(lib, store, resolver, opts, nil)
}

func TestGenreEngine(t *testing.T) {
	ctx := context.Background()

	t.Run("End To End", func(t *testing.T) {
		lib := fiveGenreLibrary()
		store := snapshot.NewFileStore(filepath.Join(t.TempDir(), "genres.json"))
		engine := newTestEngine(lib, store)

		scan, err := engine.Scan(ctx, nil, ScanOpts{UseCache: true})
		if err != nil {
			t.Fatalf("Scan() error: %v", err)
		}
		if scan.FromCache || scan.Index.Len() != 5 || scan.Fetch.Fetched != 250 {
			t.Fatalf("unexpected scan result: cache=%v genres=%d fetched=%d", scan.FromCache, scan.Index.Len(), scan.Fetch.Fetched)
		}

		counts := scan.Index.Counts()
		if counts[0] != (models.GenreCount{Genre: "genre-3", Tracks: 70}) {
			t.Errorf("expected genre-3 first, got %+v", counts[0])
		}

		result, err := engine.Create(ctx, nil, scan.Index, "genre-0", SubmitOpts{BatchSize: 99})
		if err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		if !strings.Contains(result.Playlist.Name, "genre-0") {
			t.Errorf("playlist name %q does not mention the genre", result.Playlist.Name)
		}

		batches := lib.Batches(result.Playlist.ID)
		if len(batches) != 1 || len(batches[0]) != 40 {
			t.Fatalf("expected one batch of 40, got %d batches", len(batches))
		}
		for _, id := range batches[0] {
			if !strings.HasPrefix(id, "artist-0-") {
				t.Errorf("track %s does not belong to genre-0", id)
			}
		}
	})

	t.Run("Snapshot Short Circuits Fetch", func(t *testing.T) {
		lib := fiveGenreLibrary()
		store := snapshot.NewFileStore(filepath.Join(t.TempDir(), "genres.json"))
		engine := newTestEngine(lib, store)

		first, err := engine.Scan(ctx, nil, ScanOpts{UseCache: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		pages, lookups := lib.PageCalls(), lib.TotalArtistCalls()

		progress := make(chan ProgressUpdate, 10)
		second, err := engine.Scan(ctx, progress, ScanOpts{UseCache: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		close(progress)

		if !second.FromCache {
			t.Error("expected a cached result")
		}
		if lib.PageCalls() != pages || lib.TotalArtistCalls() != lookups {
			t.Error("a cache hit should not touch the library")
		}
		if !slices.Equal(second.Index.Counts(), first.Index.Counts()) {
			t.Errorf("cached counts %v differ from live %v", second.Index.Counts(), first.Index.Counts())
		}

		var phases []Phase
		for u := range progress {
			phases = append(phases, u.Phase)
		}
		if !slices.Equal(phases, []Phase{LoadSnapshot, GroupGenres}) {
			t.Errorf("unexpected phases %v", phases)
		}
	})

	t.Run("Refresh Ignores Snapshot", func(t *testing.T) {
		lib := fiveGenreLibrary()
		store := snapshot.NewFileStore(filepath.Join(t.TempDir(), "genres.json"))
		if err := store.Save(ctx, []models.ArtistRecord{{ID: "stale", Genres: []string{"old"}, Tracks: []string{"x"}}}); err != nil {
			t.Fatal(err)
		}

		scan, err := newTestEngine(lib, store).Scan(ctx, nil, ScanOpts{UseCache: true, Refresh: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if scan.FromCache || scan.Index.Has("old") {
			t.Error("expected a live result")
		}

		saved, err := store.Load(ctx)
		if err != nil || len(saved) != 5 {
			t.Errorf("expected the refreshed snapshot to be saved, got %d records, err %v", len(saved), err)
		}
	})

	t.Run("No Cache", func(t *testing.T) {
		lib := fiveGenreLibrary()
		path := filepath.Join(t.TempDir(), "genres.json")

		if _, err := newTestEngine(lib, snapshot.NewFileStore(path)).Scan(ctx, nil, ScanOpts{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("snapshot should not be written without the cache")
		}
	})

	t.Run("Corrupt Snapshot", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "genres.json")
		if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}

		_, err := newTestEngine(fiveGenreLibrary(), snapshot.NewFileStore(path)).Scan(ctx, nil, ScanOpts{UseCache: true})
		if !errors.Is(err, shared.ErrCorruptData) || shared.Op(err) != "load snapshot" {
			t.Errorf("expected corrupt snapshot error, got %v", err)
		}
	})

	t.Run("Incomplete Listing Is Not Saved", func(t *testing.T) {
		lib := fiveGenreLibrary()
		lib.PageErrs = map[int]error{100: shared.ErrTransientUpstream}
		store := snapshot.NewFileStore(filepath.Join(t.TempDir(), "genres.json"))

		scan, err := newTestEngine(lib, store).Scan(ctx, nil, ScanOpts{UseCache: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if scan.Fetch.Fetched != 100 || !errors.Is(scan.Fetch.PageErr, shared.ErrTransientUpstream) {
			t.Errorf("unexpected fetch stats %+v", scan.Fetch)
		}
		if _, err := store.Load(ctx); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected no snapshot, got %v", err)
		}
	})

	t.Run("Listing Fails Immediately", func(t *testing.T) {
		lib := fiveGenreLibrary()
		lib.PageErrs = map[int]error{0: shared.ErrAuthFailed}

		_, err := newTestEngine(lib, nil).Scan(ctx, nil, ScanOpts{})
		if !errors.Is(err, shared.ErrAuthFailed) || shared.Op(err) != "fetch saved tracks" {
			t.Errorf("unexpected error %v", err)
		}
	})

	t.Run("Unknown Artist Goes To Sentinel", func(t *testing.T) {
		lib := fiveGenreLibrary()
		lib.AddArtist("gone", "Gone", nil, 5)
		delete(lib.Artists, "gone")

		scan, err := newTestEngine(lib, nil).Scan(ctx, nil, ScanOpts{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Equal(scan.Missing, []string{"gone"}) {
			t.Errorf("Missing = %v", scan.Missing)
		}
		if ids, err := scan.Index.Tracks(models.UnknownGenre); err != nil || len(ids) != 5 {
			t.Errorf("expected 5 unknown genre tracks, got %v (%v)", ids, err)
		}
	})

	t.Run("Unknown Genre Selection", func(t *testing.T) {
		lib := fiveGenreLibrary()
		engine := newTestEngine(lib, nil)
		scan, err := engine.Scan(ctx, nil, ScanOpts{})
		if err != nil {
			t.Fatal(err)
		}

		_, err = engine.Create(ctx, nil, scan.Index, "polka", SubmitOpts{})
		if !errors.Is(err, shared.ErrNotFound) || shared.Op(err) != "select genre" {
			t.Errorf("unexpected error %v", err)
		}
		if len(lib.Playlists()) != 0 {
			t.Error("no playlist should be created")
		}
	})

	t.Run("Records Runs", func(t *testing.T) {
		lib := fiveGenreLibrary()
		lib.AddErrs = map[int]error{0: shared.ErrTransientUpstream}
		recorder := &memoryRecorder{}
		engine := newTestEngine(lib, nil)
		engine.SetRunRecorder(recorder)

		scan, err := engine.Scan(ctx, nil, ScanOpts{})
		if err != nil {
			t.Fatal(err)
		}

		if _, err := engine.Create(ctx, nil, scan.Index, "GENRE-3", SubmitOpts{BatchSize: 30}); !errors.Is(err, shared.ErrPartialBatch) {
			t.Fatalf("expected ErrPartialBatch, got %v", err)
		}
		if _, err := engine.Create(ctx, nil, scan.Index, "genre-1", SubmitOpts{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(recorder.runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(recorder.runs))
		}
		partial, done := recorder.runs[0], recorder.runs[1]
		if partial.Genre != "genre-3" || partial.Status != models.RunPartial || partial.BatchCount != 3 || partial.FailedBatches != 1 || partial.Error == "" {
			t.Errorf("unexpected partial run %+v", partial)
		}
		if done.Status != models.RunCompleted || done.TrackCount != 60 || done.PlaylistID == "" {
			t.Errorf("unexpected completed run %+v", done)
		}
	})

	t.Run("Recorder Failure Is Not Fatal", func(t *testing.T) {
		lib := fiveGenreLibrary()
		engine := newTestEngine(lib, nil)
		engine.SetRunRecorder(&memoryRecorder{err: errors.New("disk full")})

		scan, err := engine.Scan(ctx, nil, ScanOpts{})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := engine.Create(ctx, nil, scan.Index, "genre-4", SubmitOpts{}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Plan", func(t *testing.T) {
		engine := newTestEngine(fiveGenreLibrary(), nil)
		scan, err := engine.Scan(ctx, nil, ScanOpts{})
		if err != nil {
			t.Fatal(err)
		}

		plan, err := engine.Plan(scan.Index, "genre-3", 30)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if plan.TrackCount != 70 || !slices.Equal(plan.BatchSizes, []int{30, 30, 10}) || plan.PlaylistName != PlaylistName("genre-3") {
			t.Errorf("unexpected plan %+v", plan)
		}

		if _, err := engine.Plan(scan.Index, "genre-3", 101); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if _, err := engine.Plan(scan.Index, "nope", 0); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
