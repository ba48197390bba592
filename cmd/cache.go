package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/genrefy/internal/formatter"
	"github.com/desertthunder/genrefy/internal/models"
	"github.com/desertthunder/genrefy/internal/repositories"
	"github.com/desertthunder/genrefy/internal/shared"
	"github.com/desertthunder/genrefy/internal/snapshot"
	"github.com/desertthunder/genrefy/internal/tasks"
	"github.com/urfave/cli/v3"
)

// snapshotInfo is the JSON shape of `cache show --format json`.
type snapshotInfo struct {
	Store   string              `json:"store"`
	Artists int                 `json:"artists"`
	Tracks  int                 `json:"tracks"`
	Genres  []models.GenreCount `json:"genres"`
}

// CacheShow summarizes the snapshot without touching the network.
func (r *Runner) CacheShow(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	store, err := r.snapshotStore(ctx)
	if err != nil {
		return err
	}

	records, err := store.Load(ctx)
	if errors.Is(err, shared.ErrNotFound) {
		return r.writePlain("No snapshot in %s. Run `genrefy scan` to create one.\n", store.Describe())
	}
	if err != nil {
		return &shared.OpError{Op: "load snapshot", Err: err}
	}

	index := tasks.BuildGenreIndex(records)
	info := snapshotInfo{
		Store:   store.Describe(),
		Artists: len(records),
		Tracks:  distinctTracks(records),
		Genres:  index.Counts(),
	}

	switch format {
	case formatter.FormatJSON:
		return r.writeJSON(info, true)
	case formatter.FormatText:
		r.writePlainHeader("Snapshot")
		r.writePlain("Store:   %s\n", info.Store)
		if repo, ok := store.(*repositories.ArtistRepository); ok {
			if at, err := repo.SavedAt(ctx); err == nil {
				r.writePlain("Saved:   %s\n", at.Local().Format("2006-01-02 15:04"))
			}
		}
		r.writePlain("Artists: %d\nTracks:  %d\n\n", info.Artists, info.Tracks)
	}
	return formatter.WriteGenreSummary(r.output, info.Genres, format)
}

// CacheClear deletes the snapshot.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	store, err := r.snapshotStore(ctx)
	if err != nil {
		return err
	}
	if err := store.Clear(ctx); err != nil {
		return &shared.OpError{Op: "clear snapshot", Err: err}
	}
	r.logger.Info("snapshot cleared", "store", store.Describe())
	return r.writePlain("✓ Cleared snapshot (%s)\n", store.Describe())
}

// CachePath prints the snapshot location.
func (r *Runner) CachePath(ctx context.Context, cmd *cli.Command) error {
	switch r.config.Cache.Backend {
	case "sqlite":
		return r.writePlain("%s\n", r.config.Database.Path)
	case "none":
		return r.writePlain("%s\n", snapshot.Disabled{}.Describe())
	default:
		return r.writePlain("%s\n", r.config.Cache.Path)
	}
}

// History lists previously created playlists, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	db, err := r.database(ctx)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}

	runs, err := repositories.NewRunRepository(db).List(ctx, cmd.Int("limit"))
	if err != nil {
		return err
	}
	return formatter.WriteRuns(r.output, runs, format)
}

func distinctTracks(records []models.ArtistRecord) int {
	seen := map[string]struct{}{}
	for _, rec := range records {
		for _, id := range rec.Tracks {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}
