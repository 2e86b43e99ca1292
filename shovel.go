package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shovelmq/shovel/audit"
	"github.com/shovelmq/shovel/cfg"
	"github.com/shovelmq/shovel/telemetry"
)

// outcome is what a subcommand hands back for auditing and the process
// exit code. Params holds the effective flag values with secrets already
// masked.
type outcome struct {
	Params   map[string]string
	Results  map[string]any
	ExitCode int
}

type runFunc func(ctx context.Context) (*outcome, error)

// command wires a subcommand's flags before parsing and returns its body.
// setup registers flags on fs and captures the pointers; the returned
// runFunc reads them after fs.Parse.
type command struct {
	summary string
	setup   func(fs *flag.FlagSet) runFunc
}

var commands = map[string]command{
	"publish":     {"publish one message, or replay an archive, to a queue", setupPublish},
	"consume":     {"destructively read messages from a queue", setupConsume},
	"browse":      {"read messages from a queue without consuming them", setupBrowse},
	"dir-publish": {"publish the files of a directory to a queue", setupDirPublish},
	"db-publish":  {"publish database query results to a queue", setupDBPublish},
	"db-insert":   {"insert queue messages into a database table", setupDBInsert},
	"db-export":   {"export database query results to files", setupDBExport},
	"copy-queue":  {"copy messages from one queue to another", setupCopyQueue},
	"retry":       {"re-deliver previously failed messages", setupRetry},
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	name := os.Args[1]
	switch name {
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		printUsage(os.Stderr)
		os.Exit(2)
	}

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "path to a TOML configuration file")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	run := cmd.setup(fs)
	fs.Parse(os.Args[2:])

	if err := cfg.Load(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		cfg.Config.Logging.Verbose = true
	}
	setupLogging()

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	telemetry.InitializeTelemetry()

	// First signal stops pickup of new records and lets in-flight work
	// finish; a second one kills the process the default way.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	out, err := run(ctx)
	end := time.Now()

	if out == nil {
		out = &outcome{ExitCode: 1}
	}

	rec := audit.Record{
		Command:    name,
		Parameters: out.Params,
		Results:    out.Results,
		StartTime:  start,
		EndTime:    end,
		DurationMS: end.Sub(start).Milliseconds(),
		ExitCode:   out.ExitCode,
		Success:    out.ExitCode == 0,
	}
	if err != nil {
		log.Error().Err(err).Str("command", name).Msg("Command failed")
		rec.Error = err.Error()
		if rec.ExitCode == 0 {
			rec.ExitCode = 1
			rec.Success = false
			out.ExitCode = 1
		}
	}

	// Audit problems are reported but never change the command's outcome
	if auditErr := audit.NewWriter(cfg.Config.Audit.Path).Append(rec); auditErr != nil {
		log.Warn().Err(auditErr).Msg("Could not append audit record")
	}

	os.Exit(out.ExitCode)
}

func setupLogging() {
	var writer io.Writer = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
	})
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stderr
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Str("instance_id", cfg.Config.InstanceID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: shovel <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-12s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'shovel <command> -h' for command flags.")
}
