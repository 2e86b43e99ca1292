package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/shovelmq/shovel/archive"
	"github.com/shovelmq/shovel/broker"
	"github.com/shovelmq/shovel/sink"
	"github.com/shovelmq/shovel/source"
	"github.com/shovelmq/shovel/transfer"
)

// setupPublish handles both single-message publish and archive replay
func setupPublish(fs *flag.FlagSet) runFunc {
	queue := fs.String("queue", "", "destination queue subject (required)")
	message := fs.String("message", "", "message body as a literal argument")
	file := fs.String("file", "", "read the message body from this file, '-' for stdin")
	corrID := fs.String("corr-id", "", "correlation id to attach")
	archivePath := fs.String("archive", "", "replay every message of this archive instead")
	eflags := registerEngineFlags(fs)

	return func(ctx context.Context) (*outcome, error) {
		params := map[string]string{"queue": *queue}

		if *queue == "" {
			return &outcome{Params: params, ExitCode: 1}, fmt.Errorf("-queue is required")
		}

		if *archivePath != "" {
			params["archive"] = *archivePath
			src, err := archive.NewReader(*archivePath)
			if err != nil {
				return &outcome{Params: params, ExitCode: 1}, err
			}
			defer src.Close()

			var session *broker.Session
			var dest transfer.Destination = dryRunDestination{target: *queue}
			if !*eflags.dryRun {
				session, err = connectBroker()
				if err != nil {
					return &outcome{Params: params, ExitCode: 1}, err
				}
				defer session.Close()

				dest, err = sink.NewQueue(ctx, session, *queue)
				if err != nil {
					return &outcome{Params: params, ExitCode: 1}, err
				}
			}

			ecfg, err := eflags.engineConfig(ctx, session)
			if err != nil {
				return &outcome{Params: params, ExitCode: 1}, err
			}
			ecfg.Source = src
			ecfg.Primary = dest
			return runEngine(ctx, ecfg, eflags.params(params))
		}

		session, err := connectBroker()
		if err != nil {
			return &outcome{Params: params, ExitCode: 1}, err
		}
		defer session.Close()

		payload, sourceName, err := readPayload(*message, *file)
		if err != nil {
			return &outcome{Params: params, ExitCode: 1}, err
		}
		params["source"] = sourceName

		if err := session.EnsureStream(ctx, *queue); err != nil {
			return &outcome{Params: params, ExitCode: 1}, err
		}

		var corr *string
		if *corrID != "" {
			corr = corrID
			params["corrId"] = *corrID
		}

		if err := session.Publish(ctx, *queue, payload, corr, nil); err != nil {
			return &outcome{Params: params, ExitCode: 1, Results: map[string]any{"published": 0}}, err
		}

		return &outcome{Params: params, Results: map[string]any{"published": 1}}, nil
	}
}

func readPayload(message, file string) ([]byte, string, error) {
	switch {
	case message != "" && file != "":
		return nil, "", fmt.Errorf("-message and -file are mutually exclusive")
	case message != "":
		return []byte(message), "argument", nil
	case file == "-" || file == "":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, "stdin", nil
	default:
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", file, err)
		}
		return data, file, nil
	}
}

func setupConsume(fs *flag.FlagSet) runFunc {
	return setupQueueReader(fs, true)
}

func setupBrowse(fs *flag.FlagSet) runFunc {
	return setupQueueReader(fs, false)
}

// setupQueueReader is the shared body of consume and browse; the only
// difference is whether messages are acknowledged away.
func setupQueueReader(fs *flag.FlagSet, destructive bool) runFunc {
	queue := fs.String("queue", "", "source queue subject (required)")
	count := fs.Int("count", 10, "maximum number of messages to read")
	waitMS := fs.Int("wait-ms", 2000, "how long to wait for messages")
	outDir := fs.String("out-dir", "", "write each message to a file in this directory")
	archivePath := fs.String("archive", "", "append each message to this archive file")
	eflags := registerEngineFlags(fs)

	return func(ctx context.Context) (*outcome, error) {
		params := map[string]string{
			"queue": *queue,
			"count": strconv.Itoa(*count),
		}

		if *queue == "" {
			return &outcome{Params: params, ExitCode: 1}, fmt.Errorf("-queue is required")
		}
		if *outDir != "" && *archivePath != "" {
			return &outcome{Params: params, ExitCode: 1}, fmt.Errorf("-out-dir and -archive are mutually exclusive")
		}

		session, err := connectBroker()
		if err != nil {
			return &outcome{Params: params, ExitCode: 1}, err
		}
		defer session.Close()

		wait := time.Duration(*waitMS) * time.Millisecond
		var src *source.Queue
		if destructive {
			src, err = source.NewConsume(ctx, session, *queue, *count, wait)
		} else {
			src, err = source.NewBrowse(ctx, session, *queue, *count, wait)
		}
		if err != nil {
			return &outcome{Params: params, ExitCode: 1}, err
		}
		defer src.Close()

		var dest transfer.Destination
		switch {
		case *outDir != "":
			params["outDir"] = *outDir
			dest, err = sink.NewFiles(*outDir, false)
			if err != nil {
				return &outcome{Params: params, ExitCode: 1}, err
			}
		case *archivePath != "":
			params["archive"] = *archivePath
			dest, err = archive.NewWriter(*archivePath, *queue)
			if err != nil {
				return &outcome{Params: params, ExitCode: 1}, err
			}
		default:
			dest = &printDestination{out: os.Stdout}
		}
		defer dest.Close()

		ecfg, err := eflags.engineConfig(ctx, session)
		if err != nil {
			return &outcome{Params: params, ExitCode: 1}, err
		}
		ecfg.Source = src
		ecfg.Primary = dest
		return runEngine(ctx, ecfg, eflags.params(params))
	}
}

func setupCopyQueue(fs *flag.FlagSet) runFunc {
	src := fs.String("source", "", "queue subject to browse (required)")
	dst := fs.String("dest", "", "queue subject to publish to (required)")
	count := fs.Int("count", 100, "maximum number of messages to copy")
	waitMS := fs.Int("wait-ms", 2000, "how long to wait for messages")
	dedup := fs.Bool("dedup", false, "skip records whose payload was already copied")
	eflags := registerEngineFlags(fs)

	return func(ctx context.Context) (*outcome, error) {
		params := map[string]string{
			"source": *src,
			"dest":   *dst,
			"count":  strconv.Itoa(*count),
		}

		if *src == "" || *dst == "" {
			return &outcome{Params: params, ExitCode: 1}, fmt.Errorf("-source and -dest are required")
		}

		session, err := connectBroker()
		if err != nil {
			return &outcome{Params: params, ExitCode: 1}, err
		}
		defer session.Close()

		wait := time.Duration(*waitMS) * time.Millisecond
		reader, err := source.NewBrowse(ctx, session, *src, *count, wait)
		if err != nil {
			return &outcome{Params: params, ExitCode: 1}, err
		}
		defer reader.Close()

		// Browsing is side-effect free; a dry run may still enumerate the
		// source but must not ensure the destination stream.
		var dest transfer.Destination = dryRunDestination{target: *dst}
		if !*eflags.dryRun {
			dest, err = sink.NewQueue(ctx, session, *dst)
			if err != nil {
				return &outcome{Params: params, ExitCode: 1}, err
			}
		}

		ecfg, err := eflags.engineConfig(ctx, session)
		if err != nil {
			return &outcome{Params: params, ExitCode: 1}, err
		}
		ecfg.Source = reader
		ecfg.Primary = dest
		if *dedup {
			params["dedup"] = "true"
			ecfg.Dedup = transfer.NewDeduper()
		}
		return runEngine(ctx, ecfg, eflags.params(params))
	}
}

// printDestination writes each message body to stdout with a separating
// header, for interactive inspection.
type printDestination struct {
	out io.Writer
}

func (p *printDestination) Name() string { return "stdout" }

func (p *printDestination) Deliver(_ context.Context, rec *transfer.Record) error {
	corr := ""
	if rec.CorrelationID != nil {
		corr = " " + broker.CorrelationHeader + "=" + *rec.CorrelationID
	}
	if _, err := fmt.Fprintf(p.out, "--- message %d%s\n", rec.Index, corr); err != nil {
		return err
	}
	if _, err := p.out.Write(rec.Payload); err != nil {
		return err
	}
	_, err := fmt.Fprintln(p.out)
	return err
}

func (p *printDestination) Close() error { return nil }
