package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/genrefy/internal/shared"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	if err := runner.command().Run(ctx, os.Args); err != nil {
		stop()
		logger.Error("run stopped", "kind", shared.Kind(err), "op", shared.Op(err), "err", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps err to the process status: 130 for an interrupt, 2 for bad input, 1 otherwise.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled), errors.Is(err, shared.ErrCancelled):
		return 130
	case errors.Is(err, shared.ErrInvalidArgument), errors.Is(err, shared.ErrMissingArgument), errors.Is(err, shared.ErrInvalidConfig):
		return 2
	default:
		return 1
	}
}
