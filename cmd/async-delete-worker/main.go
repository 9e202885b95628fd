// Command async-delete-worker drains the shared deferred-deletion queue and
// unlinks superseded segment files, the background worker half of
// directory.DeferredDelete's "don't unlink synchronously" contract.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/epokhe/pathery/config"
	"github.com/epokhe/pathery/directory"
	"github.com/epokhe/pathery/logging"
)

func main() {
	f := &config.Flags{}
	config.RegisterCommon(flag.CommandLine, f)
	config.RegisterDirectory(flag.CommandLine, f)
	config.RegisterQueue(flag.CommandLine, f)
	flag.Parse()

	logging.Init(f.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q, err := config.OpenQueue(ctx, f)
	if err != nil {
		log.Fatal().Err(err).Msg("open queue")
	}

	openDir := func(ctx context.Context, indexID string) (directory.Directory, error) {
		return config.OpenDirectory(ctx, f, indexID)
	}
	w := directory.NewDeleteWorker(q, openDir)

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- w.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
	case err := <-runErrCh:
		if err != nil {
			log.Error().Err(err).Msg("delete worker stopped")
		}
	}

	cancel()
}
