package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/genrefy/internal/repositories"
	"github.com/desertthunder/genrefy/internal/services"
	"github.com/desertthunder/genrefy/internal/shared"
	"github.com/desertthunder/genrefy/internal/snapshot"
	"github.com/desertthunder/genrefy/internal/tasks"
	"github.com/desertthunder/genrefy/internal/ui"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// PickFunc asks the operator for a genre while scan runs.
type PickFunc func(ctx context.Context, scan ui.ScanFunc, batchSize int) (*ui.Selection, error)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	configPath string
	config     *shared.Config
	library    services.Library
	store      snapshot.Store
	db         *sql.DB
	logger     *log.Logger
	output     io.Writer
	status     io.Writer
	input      io.Reader
	pick       PickFunc
	browser    shared.BrowserOpener

	// mu guards config writes made by the token refresh callback.
	mu sync.Mutex
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Config, Library and Store are built from the config file when nil.
type RunnerOpts struct {
	Config  *shared.Config
	Library services.Library
	Store   snapshot.Store
	Logger  *log.Logger
	Output  io.Writer // results
	Status  io.Writer // progress, defaults to stderr
	Input   io.Reader // genre prompt
	Pick    PickFunc
	Browser shared.BrowserOpener
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Status == nil {
		opts.Status = os.Stderr
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Pick == nil {
		opts.Pick = func(ctx context.Context, scan ui.ScanFunc, batchSize int) (*ui.Selection, error) {
			return ui.Pick(ctx, scan, batchSize)
		}
	}
	if opts.Browser == nil {
		opts.Browser = shared.OpenBrowser
	}

	return &Runner{
		config:  opts.Config,
		library: opts.Library,
		store:   opts.Store,
		logger:  opts.Logger,
		output:  opts.Output,
		status:  opts.Status,
		input:   opts.Input,
		pick:    opts.Pick,
		browser: opts.Browser,
	}
}

// SetLogger replaces the logger, e.g. while the terminal belongs to the picker.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// before loads .env and the config file, then applies the log level.
//
// A missing config file means defaults; the credentials can still come from the environment.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	r.configPath = cmd.String("config")

	if r.config == nil {
		if err := shared.LoadEnv(".env"); err != nil {
			return ctx, fmt.Errorf("failed to load .env: %w", err)
		}

		config, err := shared.LoadConfig(r.configPath)
		switch {
		case errors.Is(err, shared.ErrMissingConfig):
			r.logger.Debug("config file not found, using defaults", "path", r.configPath)
			config = shared.DefaultConfig()
		case err != nil:
			return ctx, err
		}
		config.ApplyEnv()
		r.config = config
	}

	level := cmd.String("log-level")
	if level == "" {
		level = r.config.Log.Level
	}
	ll, err := shared.ParseLogLevel(level)
	if err != nil {
		return ctx, err
	}
	shared.SetLogLevel(r.logger, ll)
	return ctx, nil
}

func (r *Runner) after(ctx context.Context, cmd *cli.Command) error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// pipeline merges command flags over the [pipeline] config section and validates the result.
func (r *Runner) pipeline(cmd *cli.Command) (shared.PipelineConfig, error) {
	p := r.config.Pipeline
	if s := cmd.String("strategy"); s != "" {
		p.Strategy = s
	}
	if cmd.IsSet("limit") {
		p.Limit = cmd.Int("limit")
	}
	if cmd.IsSet("concurrency") {
		p.Concurrency = cmd.Int("concurrency")
	}
	if cmd.IsSet("batch-size") {
		p.BatchSize = cmd.Int("batch-size")
	}
	if cmd.Bool("public") {
		p.Public = true
	}

	merged := *r.config
	merged.Pipeline = p
	if err := merged.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// spotifyLibrary builds the Spotify client from the persisted token on first use.
func (r *Runner) spotifyLibrary(ctx context.Context) (services.Library, error) {
	if r.library != nil {
		return r.library, nil
	}

	creds := r.config.Credentials.Spotify
	if !creds.HasToken() {
		return nil, fmt.Errorf("%w: no saved token, run `genrefy auth` first", shared.ErrNotAuthenticated)
	}

	svc, err := services.NewSpotifyService(creds.Map())
	if err != nil {
		return nil, err
	}
	svc.SetTokenRefreshCallback(r.persistToken)

	if err := svc.AuthenticateWithToken(ctx, creds.Token()); err != nil {
		return nil, err
	}
	r.library = svc
	return svc, nil
}

// persistToken saves a refreshed token back to the config file.
func (r *Runner) persistToken(token *oauth2.Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		r.logger.Warn("ignoring refreshed token", "err", err)
		return
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		r.logger.Warn("failed to save refreshed token", "path", r.configPath, "err", err)
		return
	}
	r.logger.Debug("refreshed token saved", "path", r.configPath)
}

// database opens and migrates the SQLite database once per run.
func (r *Runner) database(ctx context.Context) (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}
	db, err := shared.OpenDatabase(ctx, r.config.Database)
	if err != nil {
		return nil, err
	}
	r.db = db
	return db, nil
}

// snapshotStore returns the injected store or the one selected by [cache] backend.
func (r *Runner) snapshotStore(ctx context.Context) (snapshot.Store, error) {
	if r.store != nil {
		return r.store, nil
	}

	switch r.config.Cache.Backend {
	case "sqlite":
		db, err := r.database(ctx)
		if err != nil {
			return nil, err
		}
		return repositories.NewArtistRepository(db), nil
	case "none":
		return snapshot.Disabled{}, nil
	default:
		return snapshot.NewFileStore(r.config.Cache.Path), nil
	}
}

// newEngine wires the pipeline for one command. With history set, created playlists are recorded.
func (r *Runner) newEngine(ctx context.Context, p shared.PipelineConfig, history bool) (*tasks.GenreEngine, error) {
	strategy, err := tasks.ParseStrategy(p.Strategy)
	if err != nil {
		return nil, err
	}

	policy, err := tasks.RetryPolicyFromConfig(r.config.Resolver)
	if err != nil {
		return nil, err
	}

	lib, err := r.spotifyLibrary(ctx)
	if err != nil {
		return nil, err
	}

	store, err := r.snapshotStore(ctx)
	if err != nil {
		return nil, err
	}

	resolver := tasks.NewResolver(lib, policy, shared.WithLogger(r.logger, "stage", "resolve"),
		tasks.WithRequestsPerSecond(r.config.Resolver.RequestsPerSecond))

	engine := tasks.NewGenreEngine(lib, store, resolver, tasks.EngineOpts{
		Fetch:       tasks.FetchOpts{Strategy: strategy, PageSize: p.PageSize, Limit: p.Limit},
		Concurrency: p.Concurrency,
	}, r.logger)

	if history {
		if db, err := r.database(ctx); err != nil {
			r.logger.Warn("run history disabled", "err", err)
		} else {
			engine.SetRunRecorder(repositories.NewRunRepository(db))
		}
	}
	return engine, nil
}

// startProgress renders updates on the status writer until the returned stop func is called.
func (r *Runner) startProgress() (chan tasks.ProgressUpdate, func()) {
	progress := make(chan tasks.ProgressUpdate, 64)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for update := range progress {
			r.renderProgress(update)
		}
	}()

	return progress, func() {
		close(progress)
		<-done
	}
}

func (r *Runner) renderProgress(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.LoadSnapshot, tasks.SaveSnapshot:
		r.writeStatus("💾 %s\n", update.Message)
	case tasks.FetchTracks:
		r.writeStatus("📥 %s\n", update.Message)
	case tasks.ResolveArtists:
		r.writeStatus("   %s\n", update.Message)
	case tasks.GroupGenres:
		r.writeStatus("🏷  %s\n", update.Message)
	case tasks.CreatePlaylist:
		r.writeStatus("\n📝 %s\n", update.Message)
	case tasks.SubmitBatches:
		r.writeStatus("   %s\n", update.Message)
	}
}

func (r *Runner) writeStatus(format string, args ...any) {
	fmt.Fprintf(r.status, format, args...)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	rule := strings.Repeat("═", 39)
	r.writePlain("%s\n%v\n%s\n", rule, title, rule)
}
