package tasks

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/genrefy/internal/models"
	"github.com/desertthunder/genrefy/internal/shared"
	"golang.org/x/sync/errgroup"
)

// EntrySource yields saved entries. [*Fetcher] is the production source.
type EntrySource interface {
	Entries(ctx context.Context) iter.Seq[models.SavedEntry]
}

// GenreResolver resolves an artist id to its genre labels. [*Resolver] is the production resolver.
type GenreResolver interface {
	ResolveGenres(ctx context.Context, artistID string) ([]string, error)
}

// AggregateResult is the outcome of one aggregation pass.
type AggregateResult struct {
	Index   *ArtistIndex
	Entries int      // entries consumed from the source
	Artists int      // distinct artists resolved
	Missing []string // artists the upstream does not know, sorted
}

// Aggregator fans saved entries out to goroutines that fill a shared [ArtistIndex].
type Aggregator struct {
	resolver    GenreResolver
	concurrency int
	logger      *log.Logger
}

// NewAggregator creates an aggregator. concurrency bounds in-flight units; 0 leaves them unbounded.
func NewAggregator(resolver GenreResolver, concurrency int, logger *log.Logger) *Aggregator {
	return &Aggregator{resolver: resolver, concurrency: concurrency, logger: orDiscard(logger)}
}

// Aggregate consumes src, dispatching one unit of work per entry.
//
// Each unit appends its track to the primary artist's bucket; the unit that first sees an
// artist resolves that artist's genres. An artist reported as not found keeps an empty genre
// set. Any other resolution failure cancels the remaining units and is returned.
func (a *Aggregator) Aggregate(ctx context.Context, progress chan<- ProgressUpdate, src EntrySource) (*AggregateResult, error) {
	g, gctx := errgroup.WithContext(ctx)
	if a.concurrency > 0 {
		g.SetLimit(a.concurrency)
	}

	index := NewArtistIndex()
	var (
		mu       sync.Mutex
		missing  []string
		done     atomic.Int64
		resolved atomic.Int64
		entries  int
	)

	for entry := range src.Entries(gctx) {
		if gctx.Err() != nil {
			break
		}
		entries++

		g.Go(func() error {
			n := int(done.Add(1))
			a.logger.Debug("saved track", "seq", entry.Seq, "track", entry.TrackID, "name", entry.TrackName, "artist", entry.ArtistID)
			sendProgress(progress, savedTrackUpdate(n, entry))

			if !index.Add(entry) {
				return nil
			}

			genres, err := a.resolver.ResolveGenres(gctx, entry.ArtistID)
			switch {
			case err == nil:
			case errors.Is(err, shared.ErrNotFound):
				a.logger.Warn("artist not found, filing tracks under unknown genre", "artist", entry.ArtistID, "name", entry.ArtistName)
				mu.Lock()
				missing = append(missing, entry.ArtistID)
				mu.Unlock()
				genres = []string{}
			default:
				return &shared.OpError{Op: "resolve genres", Err: fmt.Errorf("artist %s: %w", entry.ArtistID, err)}
			}

			index.SetGenres(entry.ArtistID, genres)
			sendProgress(progress, resolvedArtistUpdate(int(resolved.Add(1)), entry.ArtistID, genres))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slices.Sort(missing)
	return &AggregateResult{
		Index:   index,
		Entries: entries,
		Artists: int(resolved.Load()),
		Missing: missing,
	}, nil
}
