// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/genrefy/internal/models"
	"github.com/desertthunder/genrefy/internal/shared"
)

// FakeLibrary is an in-memory test double for services.Library. It is safe for concurrent use.
//
// Exported fields configure it and must be set before use.
type FakeLibrary struct {
	User    models.User
	Tracks  []models.Track
	Artists map[string]models.Artist

	// PageErrs fails the saved-tracks request starting at the given offset.
	PageErrs map[int]error
	// ArtistErrs queues errors per artist id, returned one per call before any success.
	ArtistErrs map[string][]error
	// ArtistDelay holds each artist lookup open for the given duration.
	ArtistDelay time.Duration
	UserErr     error
	CreateErr   error
	// AddErrs fails the n-th (zero-based) AddItems call.
	AddErrs map[int]error

	mu          sync.Mutex
	pageCalls   int
	artistCalls map[string]int
	inFlight    int
	maxInFlight int
	playlists   []models.Playlist
	addCalls    int
	added       map[string][][]string
}

// NewFakeLibrary returns an empty library owned by user-1.
func NewFakeLibrary() *FakeLibrary {
	return &FakeLibrary{
		User:    models.User{ID: "user-1", DisplayName: "Test User"},
		Artists: make(map[string]models.Artist),
	}
}

// AddArtist registers an artist and appends n saved tracks by it, with ids "<id>-t000" onwards.
func (f *FakeLibrary) AddArtist(id, name string, genres []string, n int) []string {
	f.Artists[id] = models.Artist{ID: id, Name: name, Genres: genres}

	ids := make([]string, n)
	for i := range n {
		ids[i] = fmt.Sprintf("%s-t%03d", id, i)
		f.Tracks = append(f.Tracks, models.Track{
			ID:          ids[i],
			Name:        fmt.Sprintf("%s song %d", name, i),
			ArtistIDs:   []string{id},
			ArtistNames: []string{name},
		})
	}
	return ids
}

func (f *FakeLibrary) CurrentUser(ctx context.Context) (*models.User, error) {
	if f.UserErr != nil {
		return nil, f.UserErr
	}
	u := f.User
	return &u, nil
}

func (f *FakeLibrary) SavedTracks(ctx context.Context, limit, offset int) (*models.TrackPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.pageCalls++
	f.mu.Unlock()

	if err, ok := f.PageErrs[offset]; ok {
		return nil, err
	}

	start := min(offset, len(f.Tracks))
	end := min(start+limit, len(f.Tracks))
	return &models.TrackPage{
		Tracks: slices.Clone(f.Tracks[start:end]),
		Offset: offset,
		Total:  len(f.Tracks),
		Next:   end < len(f.Tracks),
	}, nil
}

func (f *FakeLibrary) SavedTrackPages(ctx context.Context, pageSize int) iter.Seq2[*models.TrackPage, error] {
	return func(yield func(*models.TrackPage, error) bool) {
		offset := 0
		for {
			page, err := f.SavedTracks(ctx, pageSize, offset)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(page, nil) || !page.Next {
				return
			}
			offset += len(page.Tracks)
		}
	}
}

func (f *FakeLibrary) Artist(ctx context.Context, artistID string) (*models.Artist, error) {
	f.mu.Lock()
	if f.artistCalls == nil {
		f.artistCalls = make(map[string]int)
	}
	f.artistCalls[artistID]++
	call := f.artistCalls[artistID]
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.ArtistDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.ArtistDelay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if errs := f.ArtistErrs[artistID]; call <= len(errs) {
		return nil, errs[call-1]
	}

	a, ok := f.Artists[artistID]
	if !ok {
		return nil, fmt.Errorf("%w: artist %s", shared.ErrNotFound, artistID)
	}
	a.Genres = slices.Clone(a.Genres)
	return &a, nil
}

func (f *FakeLibrary) CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (*models.Playlist, error) {
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := fmt.Sprintf("pl-%d", len(f.playlists)+1)
	pl := models.Playlist{ID: id, Name: name, Description: description, URI: "spotify:playlist:" + id, Public: public}
	f.playlists = append(f.playlists, pl)
	return &pl, nil
}

func (f *FakeLibrary) AddItems(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) > shared.MaxBatchSize {
		return fmt.Errorf("%w: %d tracks in one request", shared.ErrInvalidArgument, len(trackIDs))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	call := f.addCalls
	f.addCalls++
	if err, ok := f.AddErrs[call]; ok {
		return err
	}

	if f.added == nil {
		f.added = make(map[string][][]string)
	}
	f.added[playlistID] = append(f.added[playlistID], slices.Clone(trackIDs))
	return nil
}

// ArtistCalls returns how many times artistID was looked up.
func (f *FakeLibrary) ArtistCalls(artistID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.artistCalls[artistID]
}

// TotalArtistCalls sums lookups across all artists.
func (f *FakeLibrary) TotalArtistCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.artistCalls {
		n += c
	}
	return n
}

// MaxInFlight is the highest number of concurrent artist lookups observed.
func (f *FakeLibrary) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// PageCalls counts saved-tracks requests.
func (f *FakeLibrary) PageCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageCalls
}

// AddCalls counts AddItems requests, failed ones included.
func (f *FakeLibrary) AddCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addCalls
}

// Playlists returns the playlists created so far.
func (f *FakeLibrary) Playlists() []models.Playlist {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.playlists)
}

// Batches returns the successful AddItems payloads for playlistID in call order.
func (f *FakeLibrary) Batches(playlistID string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.added[playlistID])
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
