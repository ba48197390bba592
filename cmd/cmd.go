// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

const version = "0.1.0"

// command returns the root command. Flags declared here are visible to every subcommand.
func (r *Runner) command() *cli.Command {
	return &cli.Command{
		Name:    "genrefy",
		Usage:   "Group your Spotify liked songs by genre and turn a genre into a playlist",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn or error (default from config)",
			},
		},
		Before:   r.before,
		After:    r.after,
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		authCommand, scanCommand, createCommand, cacheCommand, historyCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// authCommand runs the OAuth authorization flow
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "auth",
		Usage:  "Authorize genrefy with Spotify and save the tokens to the config file",
		Action: r.Auth,
	}
}

// scanFlags are shared by scan and create.
func scanFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "refresh",
			Usage: "Ignore the snapshot and fetch the library live",
		},
		&cli.StringFlag{
			Name:  "strategy",
			Usage: "Library paging: manual (limit/offset) or stream (follow next links)",
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum number of saved tracks to read, 0 for all",
		},
		&cli.IntFlag{
			Name:  "concurrency",
			Usage: "Maximum saved tracks processed at once, 0 for unbounded",
		},
	}
}

// scanCommand groups the library and prints the per-genre summary
func scanCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "Group liked songs by genre and print the summary",
		Flags: append(scanFlags(),
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Neither read nor write the snapshot",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json, csv or markdown",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the summary to a file instead of stdout",
			},
		),
		Action: r.Scan,
	}
}

// createCommand creates a playlist from one genre
func createCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create a playlist holding every liked song of one genre",
		Flags: append(scanFlags(),
			&cli.StringFlag{
				Name:    "genre",
				Aliases: []string{"g"},
				Usage:   "Genre label to collect (default from config, then prompt)",
			},
			&cli.BoolFlag{
				Name:  "pick",
				Usage: "Choose the genre from an interactive list",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Tracks per add-items request, 1 to 100",
			},
			&cli.BoolFlag{
				Name:  "public",
				Usage: "Make the playlist public",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print the batch plan without creating anything",
			},
		),
		Action: r.Create,
	}
}

// cacheCommand inspects the artist snapshot
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or clear the artist genre snapshot",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Summarize the snapshot",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: text, json, csv or markdown",
					},
				},
				Action: r.CacheShow,
			},
			{
				Name:   "clear",
				Usage:  "Delete the snapshot so the next scan runs live",
				Action: r.CacheClear,
			},
			{
				Name:   "path",
				Usage:  "Print where the snapshot is stored",
				Action: r.CachePath,
			},
		},
	}
}

// historyCommand lists previous playlist runs
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List playlists created by previous runs",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to list, 0 for all",
				Value: 20,
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json or csv",
			},
		},
		Action: r.History,
	}
}

// setupCommand handles setup operations for the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config file template",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}
