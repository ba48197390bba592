package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/genrefy/internal/formatter"
	"github.com/desertthunder/genrefy/internal/models"
	"github.com/desertthunder/genrefy/internal/shared"
	"github.com/desertthunder/genrefy/internal/tasks"
	"github.com/urfave/cli/v3"
)

// pickerLog receives log output while the picker owns the terminal.
const pickerLog = "./tmp/genrefy-picker.log"

// scanOpts reads --refresh and --no-cache; the "none" backend never uses the cache.
func (r *Runner) scanOpts(cmd *cli.Command) tasks.ScanOpts {
	return tasks.ScanOpts{
		Refresh:  cmd.Bool("refresh"),
		UseCache: !cmd.Bool("no-cache") && r.config.Cache.Backend != "none",
	}
}

// runScan runs engine.Scan while rendering its progress.
func (r *Runner) runScan(ctx context.Context, engine *tasks.GenreEngine, opts tasks.ScanOpts) (*tasks.ScanResult, error) {
	progress, stop := r.startProgress()
	result, err := engine.Scan(ctx, progress, opts)
	stop()
	if err != nil {
		return nil, err
	}
	r.reportScan(result)
	return result, nil
}

func (r *Runner) reportScan(result *tasks.ScanResult) {
	if result.FromCache {
		r.writeStatus("✓ Loaded %d artists from snapshot (use --refresh to rescan)\n", len(result.Records))
	} else {
		r.writeStatus("✓ Scanned %d saved tracks across %d artists\n", result.Fetch.Fetched, len(result.Records))
		if result.Fetch.Skipped > 0 {
			r.writeStatus("⚠ Skipped %d tracks without an id or artist\n", result.Fetch.Skipped)
		}
	}
	if result.Fetch.PageErr != nil {
		r.writeStatus("⚠ Library listing stopped early: %v\n", result.Fetch.PageErr)
	}
	if n := len(result.Missing); n > 0 {
		r.writeStatus("⚠ %d artists were not found and are filed under %q\n", n, models.UnknownGenre)
	}
	if result.SnapshotErr != nil {
		r.writeStatus("⚠ Snapshot not saved: %v\n", result.SnapshotErr)
	}
}

// Scan groups the library by genre and prints the per-genre summary.
func (r *Runner) Scan(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	p, err := r.pipeline(cmd)
	if err != nil {
		return err
	}

	engine, err := r.newEngine(ctx, p, false)
	if err != nil {
		return err
	}

	r.logger.Info("scanning liked songs", "strategy", p.Strategy, "limit", p.Limit, "concurrency", p.Concurrency)

	result, err := r.runScan(ctx, engine, r.scanOpts(cmd))
	if err != nil {
		return err
	}
	counts := result.Index.Counts()

	if path := cmd.String("output"); path != "" {
		if cmd.String("format") == "" {
			format = ""
		}
		if err := formatter.WriteSummaryFile(path, counts, format); err != nil {
			return err
		}
		r.logger.Info("summary written", "path", path, "genres", len(counts))
		return r.writePlain("✓ Summary of %d genres written to %s\n", len(counts), path)
	}

	return formatter.WriteGenreSummary(r.output, counts, format)
}

// Create selects a genre, creates its playlist and submits the tracks in batches.
//
// The genre comes from --genre, then the config, then the picker when --pick is set,
// then one line of standard input.
func (r *Runner) Create(ctx context.Context, cmd *cli.Command) error {
	p, err := r.pipeline(cmd)
	if err != nil {
		return err
	}

	genre := strings.TrimSpace(cmd.String("genre"))
	if genre == "" {
		genre = strings.TrimSpace(p.Genre)
	}
	pick := genre == "" && cmd.Bool("pick")

	if pick {
		fileLogger, err := shared.NewFileLogger(pickerLog)
		if err != nil {
			return fmt.Errorf("failed to create file logger: %w", err)
		}
		fileLogger.SetLevel(r.logger.GetLevel())
		r.SetLogger(fileLogger)
	}

	engine, err := r.newEngine(ctx, p, !cmd.Bool("dry-run"))
	if err != nil {
		return err
	}
	opts := r.scanOpts(cmd)

	var result *tasks.ScanResult
	if pick {
		sel, err := r.pick(ctx, func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.ScanResult, error) {
			return engine.Scan(ctx, progress, opts)
		}, p.BatchSize)
		if err != nil {
			return err
		}
		genre, result = sel.Genre, sel.Scan
	} else {
		if result, err = r.runScan(ctx, engine, opts); err != nil {
			return err
		}
		if genre == "" {
			if err := formatter.WriteGenreSummary(r.output, result.Index.Counts(), formatter.FormatText); err != nil {
				return err
			}
			if genre, err = r.promptGenre(); err != nil {
				return err
			}
		}
	}

	if cmd.Bool("dry-run") {
		plan, err := engine.Plan(result.Index, genre, p.BatchSize)
		if err != nil {
			return err
		}
		return formatter.WriteBatchPlan(r.output, plan, formatter.FormatText)
	}

	r.logger.Info("creating playlist", "genre", genre, "batch_size", p.BatchSize, "public", p.Public)

	progress, stop := r.startProgress()
	submitted, err := engine.Create(ctx, progress, result.Index, genre, tasks.SubmitOpts{BatchSize: p.BatchSize, Public: p.Public})
	stop()

	if submitted != nil && submitted.Playlist != nil {
		r.reportSubmit(submitted)
	}
	return err
}

func (r *Runner) reportSubmit(res *tasks.SubmitResult) {
	r.writePlainln("")
	r.writePlainHeader("Playlist Created")
	r.writePlain("Genre:    %s\n", res.Genre)
	r.writePlain("Playlist: %s (ID: %s)\n", res.Playlist.Name, res.Playlist.ID)
	r.writePlain("Tracks:   %d/%d in %d batches\n", res.Submitted, res.Tracks, res.Batches)

	if len(res.Failures) > 0 {
		r.writePlain("\nFailed batches:\n")
		for _, f := range res.Failures {
			r.writePlain("  - batch %d (%d tracks): %v\n", f.Index+1, f.Size, f.Err)
		}
	}
}

// promptGenre reads one genre label from the input.
func (r *Runner) promptGenre() (string, error) {
	r.writePlain("\nGenre: ")

	scanner := bufio.NewScanner(r.input)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read genre: %w", err)
		}
		return "", fmt.Errorf("%w: no genre given", shared.ErrMissingArgument)
	}

	genre := strings.TrimSpace(scanner.Text())
	if genre == "" {
		return "", fmt.Errorf("%w: no genre given", shared.ErrMissingArgument)
	}
	return genre, nil
}
