package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/genrefy/internal/models"
	"github.com/desertthunder/genrefy/internal/services"
	"github.com/desertthunder/genrefy/internal/shared"
	"github.com/desertthunder/genrefy/internal/snapshot"
)

// RunRecorder persists the outcome of a playlist creation.
//
// Implemented by repositories.RunRepository.
type RunRecorder interface {
	RecordRun(ctx context.Context, run *models.PlaylistRun) error
}

// ScanOpts selects where the artist metadata comes from.
type ScanOpts struct {
	Refresh  bool // skip the snapshot and fetch live
	UseCache bool // read and write the snapshot store
}

// ScanResult is the grouped library.
type ScanResult struct {
	Records     []models.ArtistRecord
	Index       *GenreIndex
	FromCache   bool
	Fetch       FetchStats
	Missing     []string // artists the upstream did not know
	SnapshotErr error    // set when a live result could not be saved
}

// EngineOpts configures a [GenreEngine].
type EngineOpts struct {
	Fetch       FetchOpts
	Concurrency int
}

// GenreEngine wires the fetcher, aggregator, resolver, snapshot store and submitter into
// the scan and create operations.
type GenreEngine struct {
	lib        services.Library
	store      snapshot.Store
	opts       EngineOpts
	aggregator *Aggregator
	submitter  *Submitter
	recorder   RunRecorder
	logger     *log.Logger
}

// NewGenreEngine creates an engine. A nil store disables the snapshot.
func NewGenreEngine(lib services.Library, store snapshot.Store, resolver GenreResolver, opts EngineOpts, logger *log.Logger) *GenreEngine {
	logger = orDiscard(logger)
	if store == nil {
		store = snapshot.Disabled{}
	}
	return &GenreEngine{
		lib:        lib,
		store:      store,
		opts:       opts,
		aggregator: NewAggregator(resolver, opts.Concurrency, logger),
		submitter:  NewSubmitter(lib, logger),
		logger:     logger,
	}
}

// SetRunRecorder enables run history.
func (e *GenreEngine) SetRunRecorder(r RunRecorder) {
	e.recorder = r
}

// Scan returns the grouped library, from the snapshot when allowed and present, otherwise live.
//
// A live scan whose library listing ended on a failed page is used as is but not saved.
// The listing failing before any entry, or with an auth failure, aborts the scan.
func (e *GenreEngine) Scan(ctx context.Context, progress chan<- ProgressUpdate, opts ScanOpts) (*ScanResult, error) {
	if opts.UseCache && !opts.Refresh {
		records, err := e.store.Load(ctx)
		switch {
		case err == nil:
			e.logger.Info("using snapshot", "store", e.store.Describe(), "artists", len(records))
			sendProgress(progress, loadedSnapshotUpdate(e.store.Describe(), len(records)))
			result := &ScanResult{Records: records, Index: BuildGenreIndex(records), FromCache: true}
			sendProgress(progress, groupedUpdate(result.Index.Len()))
			return result, nil
		case errors.Is(err, shared.ErrNotFound):
			e.logger.Info("no snapshot, scanning library", "store", e.store.Describe())
		default:
			return nil, &shared.OpError{Op: "load snapshot", Err: err}
		}
	}

	fetcher := NewFetcher(e.lib, e.opts.Fetch, e.logger).WithProgress(progress)
	agg, err := e.aggregator.Aggregate(ctx, progress, fetcher)
	if err != nil {
		return nil, err
	}

	stats := fetcher.Stats()
	if stats.PageErr != nil {
		if agg.Entries == 0 || errors.Is(stats.PageErr, shared.ErrAuthFailed) {
			return nil, &shared.OpError{Op: "fetch saved tracks", Err: stats.PageErr}
		}
		e.logger.Warn("library listing incomplete, snapshot not saved", "fetched", stats.Fetched, "err", stats.PageErr)
	}

	records := agg.Index.Records()
	result := &ScanResult{
		Records: records,
		Index:   BuildGenreIndex(records),
		Fetch:   stats,
		Missing: agg.Missing,
	}
	e.logger.Info("library scanned", "tracks", agg.Entries, "skipped", stats.Skipped, "artists", len(records), "missing", len(agg.Missing))

	if opts.UseCache && stats.PageErr == nil {
		if err := e.store.Save(ctx, records); err != nil {
			e.logger.Warn("failed to save snapshot", "store", e.store.Describe(), "err", err)
			result.SnapshotErr = err
		} else {
			sendProgress(progress, savedSnapshotUpdate(e.store.Describe(), len(records)))
		}
	}

	sendProgress(progress, groupedUpdate(result.Index.Len()))
	return result, nil
}

// Create builds the playlist for genre from index and records the run.
func (e *GenreEngine) Create(ctx context.Context, progress chan<- ProgressUpdate, index *GenreIndex, genre string, opts SubmitOpts) (*SubmitResult, error) {
	label, ids, err := index.Select(genre)
	if err != nil {
		return nil, &shared.OpError{Op: "select genre", Err: err}
	}

	result, err := e.submitter.Submit(ctx, progress, label, ids, opts)
	e.record(ctx, result, err)
	return result, err
}

// Plan describes what [GenreEngine.Create] would submit for genre.
func (e *GenreEngine) Plan(index *GenreIndex, genre string, batchSize int) (*models.BatchPlan, error) {
	if batchSize < 0 || batchSize > shared.MaxBatchSize {
		return nil, fmt.Errorf("%w: batch size must be between 1 and %d, got %d", shared.ErrInvalidArgument, shared.MaxBatchSize, batchSize)
	}

	label, ids, err := index.Select(genre)
	if err != nil {
		return nil, &shared.OpError{Op: "select genre", Err: err}
	}

	plan := &models.BatchPlan{Genre: label, PlaylistName: PlaylistName(label), TrackCount: len(ids), BatchSizes: []int{}}
	for _, batch := range Batches(ids, batchSize) {
		plan.BatchSizes = append(plan.BatchSizes, len(batch))
	}
	return plan, nil
}

func (e *GenreEngine) record(ctx context.Context, result *SubmitResult, err error) {
	if e.recorder == nil || result == nil || result.Playlist == nil {
		return
	}

	run := &models.PlaylistRun{
		Genre:         result.Genre,
		PlaylistID:    result.Playlist.ID,
		PlaylistName:  result.Playlist.Name,
		TrackCount:    result.Tracks,
		BatchCount:    result.Batches,
		FailedBatches: len(result.Failures),
		Status:        models.RunCompleted,
	}
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrPartialBatch):
		run.Status = models.RunPartial
		run.Error = err.Error()
	default:
		run.Status = models.RunFailed
		run.Error = err.Error()
	}

	if rerr := e.recorder.RecordRun(context.WithoutCancel(ctx), run); rerr != nil {
		e.logger.Warn("failed to record playlist run", "playlist", run.PlaylistID, "err", rerr)
	}
}
