package tasks

import (
	"context"
	"fmt"
	"io"
	"iter"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/genrefy/internal/models"
	"github.com/desertthunder/genrefy/internal/services"
	"github.com/desertthunder/genrefy/internal/shared"
)

// Strategy selects how saved-track pages are requested.
type Strategy string

const (
	// StrategyManual requests fixed-size limit/offset pages until one fails or comes back empty.
	StrategyManual Strategy = "manual"
	// StrategyStream follows the API's next links until they run out.
	StrategyStream Strategy = "stream"
)

// ParseStrategy validates a strategy name from flags or config.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyManual, StrategyStream:
		return Strategy(s), nil
	case "":
		return StrategyManual, nil
	default:
		return "", fmt.Errorf("%w: unknown fetch strategy %q", shared.ErrInvalidArgument, s)
	}
}

// FetchOpts configures a [Fetcher].
type FetchOpts struct {
	Strategy Strategy
	PageSize int // clamped to 1..[shared.MaxPageSize]
	Limit    int // maximum entries to yield, 0 for the whole library
}

// FetchStats summarises one pass over the library.
type FetchStats struct {
	Pages   int
	Fetched int   // entries yielded
	Skipped int   // tracks without an id or artist
	PageErr error // the page failure that ended the pass, if any
}

// Fetcher turns the saved-track listing into a lazy sequence of [models.SavedEntry].
type Fetcher struct {
	lib      services.Library
	opts     FetchOpts
	logger   *log.Logger
	progress chan<- ProgressUpdate

	mu    sync.Mutex
	stats FetchStats
}

// NewFetcher creates a fetcher over lib. A nil logger discards output.
func NewFetcher(lib services.Library, opts FetchOpts, logger *log.Logger) *Fetcher {
	if opts.Strategy == "" {
		opts.Strategy = StrategyManual
	}
	opts.PageSize = shared.PipelineConfig{PageSize: opts.PageSize}.ClampedPageSize()
	return &Fetcher{lib: lib, opts: opts, logger: orDiscard(logger)}
}

// WithProgress sets the channel that receives one update per fetched page.
func (f *Fetcher) WithProgress(progress chan<- ProgressUpdate) *Fetcher {
	f.progress = progress
	return f
}

// Stats returns the counters of the most recent pass.
func (f *Fetcher) Stats() FetchStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

// Entries yields saved tracks page by page, requesting a page only when the previous one is consumed.
//
// A failed page ends the sequence; the failure is logged and reported by [Fetcher.Stats].
func (f *Fetcher) Entries(ctx context.Context) iter.Seq[models.SavedEntry] {
	return func(yield func(models.SavedEntry) bool) {
		f.mu.Lock()
		f.stats = FetchStats{}
		f.mu.Unlock()

		seq := 0
		for page, err := range f.pages(ctx) {
			if err != nil {
				f.logger.Warn("saved tracks page failed, ending fetch", "strategy", f.opts.Strategy, "seq", seq, "err", err)
				f.update(func(s *FetchStats) { s.PageErr = err })
				return
			}

			f.update(func(s *FetchStats) { s.Pages++ })
			for _, track := range page.Tracks {
				entry, ok := models.EntryFromTrack(seq, track)
				seq++
				if !ok {
					f.logger.Debug("skipping track without id or artist", "seq", seq-1, "name", track.Name)
					f.update(func(s *FetchStats) { s.Skipped++ })
					continue
				}

				var fetched int
				f.update(func(s *FetchStats) { s.Fetched++; fetched = s.Fetched })
				if !yield(entry) {
					return
				}
				if f.opts.Limit > 0 && fetched >= f.opts.Limit {
					return
				}
			}

			stats := f.Stats()
			sendProgress(f.progress, fetchPageUpdate(stats.Fetched, page.Total, stats.Pages))
		}
	}
}

func (f *Fetcher) update(fn func(*FetchStats)) {
	f.mu.Lock()
	fn(&f.stats)
	f.mu.Unlock()
}

// pages adapts the configured strategy to one page sequence.
func (f *Fetcher) pages(ctx context.Context) iter.Seq2[*models.TrackPage, error] {
	if f.opts.Strategy == StrategyStream {
		return f.lib.SavedTrackPages(ctx, f.opts.PageSize)
	}

	return func(yield func(*models.TrackPage, error) bool) {
		offset := 0
		for {
			page, err := f.lib.SavedTracks(ctx, f.opts.PageSize, offset)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(page.Tracks) == 0 {
				return
			}
			if !yield(page, nil) {
				return
			}
			offset += len(page.Tracks)
		}
	}
}

func orDiscard(logger *log.Logger) *log.Logger {
	if logger == nil {
		return log.New(io.Discard)
	}
	return logger
}
