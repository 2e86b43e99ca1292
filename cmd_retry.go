package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/shovelmq/shovel/cfg"
	"github.com/shovelmq/shovel/failstore"
	"github.com/shovelmq/shovel/sink"
	"github.com/shovelmq/shovel/source"
	"github.com/shovelmq/shovel/transfer"
)

// setupRetry re-delivers persisted failed messages. Exclusion is skipped:
// these records already passed it when they originally failed. Successes
// remove their file pair; failures leave it for the next run.
func setupRetry(fs *flag.FlagSet) runFunc {
	retryDir := fs.String("retry-dir", "", "directory holding failed-message pairs")
	fallback := fs.String("fallback-queue", "", "queue for pairs with no recorded destination")
	dryRun := fs.Bool("dry-run", false, "list retry candidates without delivering")
	workers := fs.Int("workers", 0, "concurrent delivery workers")

	return func(ctx context.Context) (*outcome, error) {
		dir := *retryDir
		if dir == "" {
			dir = cfg.Config.Transfer.RetryDir
		}

		params := map[string]string{"retryDir": dir}
		if *fallback != "" {
			params["fallbackQueue"] = *fallback
		}
		if *dryRun {
			params["dryRun"] = "true"
		}

		if dir == "" {
			return &outcome{Params: params, ExitCode: 1}, fmt.Errorf("-retry-dir is required")
		}

		store := failstore.New("", dir)
		if err := store.ValidateRetryDir(); err != nil {
			return &outcome{Params: params, ExitCode: 1}, err
		}

		src, err := source.NewRetry(store)
		if err != nil {
			return &outcome{Params: params, ExitCode: 1}, err
		}
		defer src.Close()

		if src.Count() == 0 {
			log.Info().Str("dir", dir).Msg("No retry candidates found")
			return &outcome{Params: params, Results: map[string]any{"attempted": 0}}, nil
		}
		log.Info().Int("candidates", src.Count()).Str("dir", dir).Msg("Loaded retry candidates")

		var primary transfer.Destination = dryRunDestination{target: "retry-router"}
		if !*dryRun {
			session, err := connectBroker()
			if err != nil {
				return &outcome{Params: params, ExitCode: 1}, err
			}
			defer session.Close()
			primary = sink.NewRouter(session, *fallback)
		}

		w := *workers
		if w <= 0 {
			w = cfg.Config.Transfer.Workers
		}
		if w > 1 {
			params["workers"] = strconv.Itoa(w)
		}

		return runEngine(ctx, transfer.Config{
			Source:    src,
			Primary:   primary,
			Store:     store,
			RetryMode: true,
			DryRun:    *dryRun,
			Workers:   w,
		}, params)
	}
}
