package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/shovelmq/shovel/broker"
	"github.com/shovelmq/shovel/cfg"
	"github.com/shovelmq/shovel/exclusion"
	"github.com/shovelmq/shovel/failstore"
	"github.com/shovelmq/shovel/sink"
	"github.com/shovelmq/shovel/transfer"
)

// engineFlags is the shared flag set of every engine-driven command:
// exclusion, failure persistence, dry-run, fan-out, and concurrency.
// Config file values are the defaults; flags override.
type engineFlags struct {
	exclusionFile    *string
	contentExclusion *bool
	failedDir        *string
	dryRun           *bool
	workers          *int
	fanoutQueue      *string
	fanoutTopic      *string
}

// Flags are registered before the config file loads, so their zero values
// mean "not given" and are resolved against the config at run time.
func registerEngineFlags(fs *flag.FlagSet) *engineFlags {
	return &engineFlags{
		exclusionFile:    fs.String("exclusion-file", "", "path to the exclusion list file"),
		contentExclusion: fs.Bool("content-exclusion", false, "also match exclusion rules against message content"),
		failedDir:        fs.String("failed-dir", "", "directory for failed-message pairs"),
		dryRun:           fs.Bool("dry-run", false, "count would-be deliveries without delivering"),
		workers:          fs.Int("workers", 0, "concurrent delivery workers"),
		fanoutQueue:      fs.String("fanout-queue", "", "also deliver every record to this queue subject"),
		fanoutTopic:      fs.String("fanout-topic", "", "also deliver every record to this Kafka topic"),
	}
}

func (f *engineFlags) effectiveExclusionFile() string {
	if *f.exclusionFile != "" {
		return *f.exclusionFile
	}
	return cfg.Config.Transfer.ExclusionFile
}

func (f *engineFlags) effectiveFailedDir() string {
	if *f.failedDir != "" {
		return *f.failedDir
	}
	return cfg.Config.Transfer.FailedDir
}

func (f *engineFlags) effectiveWorkers() int {
	if *f.workers > 0 {
		return *f.workers
	}
	return cfg.Config.Transfer.Workers
}

func (f *engineFlags) effectiveContentExclusion() bool {
	return *f.contentExclusion || cfg.Config.Transfer.ContentExclusion
}

// engineConfig assembles the common parts of a transfer.Config. The caller
// fills Source and Primary.
func (f *engineFlags) engineConfig(ctx context.Context, session *broker.Session) (transfer.Config, error) {
	ecfg := transfer.Config{
		ContentExclusion: f.effectiveContentExclusion(),
		DryRun:           *f.dryRun,
		Workers:          f.effectiveWorkers(),
		Store:            failstore.New(f.effectiveFailedDir(), ""),
	}

	ecfg.Exclusions = exclusion.FromFile(f.effectiveExclusionFile())
	if !ecfg.Exclusions.IsEmpty() {
		log.Info().Str("rules", ecfg.Exclusions.Summary()).Msg("Loaded exclusion list")
	}

	secondary, err := f.secondary(ctx, session)
	if err != nil {
		return transfer.Config{}, err
	}
	ecfg.Secondary = secondary

	return ecfg, nil
}

func (f *engineFlags) secondary(ctx context.Context, session *broker.Session) (transfer.Destination, error) {
	if *f.fanoutQueue != "" && *f.fanoutTopic != "" {
		return nil, fmt.Errorf("-fanout-queue and -fanout-topic are mutually exclusive")
	}
	// A dry run never delivers, so fan-out endpoints are not set up either;
	// ensuring their streams would be a broker-side mutation.
	if *f.dryRun {
		return nil, nil
	}
	if *f.fanoutQueue != "" {
		if session == nil {
			return nil, fmt.Errorf("-fanout-queue requires a broker connection")
		}
		return sink.NewQueue(ctx, session, *f.fanoutQueue)
	}
	if *f.fanoutTopic != "" {
		if len(cfg.Config.Kafka.Brokers) == 0 {
			return nil, fmt.Errorf("-fanout-topic requires kafka brokers in the configuration")
		}
		return sink.NewKafka(sink.DefaultKafkaConfig(cfg.Config.Kafka.Brokers, *f.fanoutTopic))
	}
	return nil, nil
}

// params renders the effective shared flags for the audit record
func (f *engineFlags) params(into map[string]string) map[string]string {
	if v := f.effectiveExclusionFile(); v != "" {
		into["exclusionFile"] = v
	}
	if f.effectiveContentExclusion() {
		into["contentExclusion"] = "true"
	}
	if v := f.effectiveFailedDir(); v != "" {
		into["failedDir"] = v
	}
	if *f.dryRun {
		into["dryRun"] = "true"
	}
	if v := f.effectiveWorkers(); v > 1 {
		into["workers"] = strconv.Itoa(v)
	}
	if *f.fanoutQueue != "" {
		into["fanoutQueue"] = *f.fanoutQueue
	}
	if *f.fanoutTopic != "" {
		into["fanoutTopic"] = *f.fanoutTopic
	}
	return into
}

// runEngine drives a configured engine and folds the summary into an
// outcome. A resource error before or during enumeration surfaces as a
// command error with exit code 2.
func runEngine(ctx context.Context, ecfg transfer.Config, params map[string]string) (*outcome, error) {
	engine, err := transfer.New(ecfg)
	if err != nil {
		return &outcome{Params: params, ExitCode: 1}, err
	}

	summary, err := engine.Run(ctx)
	if err != nil {
		return &outcome{Params: params, ExitCode: 1}, err
	}

	log.Info().
		Int64("attempted", summary.Attempted).
		Int64("succeeded", summary.Succeeded).
		Int64("failed", summary.Failed).
		Int64("excluded", summary.Excluded).
		Dur("elapsed", summary.Elapsed).
		Msg("Transfer complete")

	return &outcome{
		Params:   params,
		Results:  summary.Results(),
		ExitCode: summary.ExitCode(),
	}, nil
}

// connectBroker opens the shared broker session named after the instance
func connectBroker() (*broker.Session, error) {
	return broker.Connect(cfg.Config.Broker, cfg.Config.InstanceID)
}

// dryRunDestination stands in for the real endpoint on dry runs, where the
// engine counts would-be deliveries without ever calling Deliver. Commands
// use it to avoid dialing the broker or touching streams.
type dryRunDestination struct {
	target string
}

func (d dryRunDestination) Name() string { return d.target }

func (d dryRunDestination) Deliver(context.Context, *transfer.Record) error {
	return fmt.Errorf("dry-run destination cannot deliver")
}

func (d dryRunDestination) Close() error { return nil }
