// Command doge20indexer runs the BRC-20-style token indexer as a single
// long-lived process: load configuration, open the store, and drive the
// block pipeline until interrupted.
//
// Grounded on daglabs-btcd's kaspad.go entrypoint shape (config load,
// component wiring, signal-driven graceful shutdown) scaled down to this
// indexer's single-component design — there is no separate p2p/RPC server
// to start here, only the indexer's own pipeline and health endpoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nintondo/doge20indexer/internal/config"
	"github.com/nintondo/doge20indexer/internal/errs"
	"github.com/nintondo/doge20indexer/internal/indexer"
	"github.com/nintondo/doge20indexer/internal/log"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Base.Error().Err(err).Msg("config")
		return 1
	}

	if err := log.Init(cfg.LogLevel, cfg.LogJSON, cfg.LogFile); err != nil {
		log.Base.Error().Err(err).Msg("log init")
		return 1
	}
	defer log.Close()

	ix, err := indexer.New(cfg)
	if err != nil {
		log.Indexer.Error().Err(err).Msg("startup")
		return 1
	}
	defer func() {
		if err := ix.Close(); err != nil {
			log.Indexer.Error().Err(err).Msg("close store")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ix.Run(ctx); err != nil {
		if err == context.Canceled {
			log.Indexer.Info().Msg("shutdown requested")
			return 0
		}
		log.Indexer.Error().Err(err).Msg("pipeline stopped")
		if kind, ok := errs.KindOf(err); ok {
			log.Indexer.Error().Str("kind", kind.String()).Msg("fatal error kind")
		}
		return 1
	}

	return 0
}
