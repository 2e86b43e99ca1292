package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/shovelmq/shovel/broker"
	"github.com/shovelmq/shovel/sink"
	"github.com/shovelmq/shovel/source"
	"github.com/shovelmq/shovel/transfer"
)

func setupDirPublish(fs *flag.FlagSet) runFunc {
	queue := fs.String("queue", "", "destination queue subject (required)")
	dir := fs.String("dir", "", "directory to publish from (required)")
	pattern := fs.String("pattern", "*", "glob selecting files by base name")
	recursive := fs.Bool("recursive", false, "descend into subdirectories")
	sortBy := fs.String("sort", source.SortByName, "file order: name, mtime, or size")
	decompress := fs.Bool("decompress", false, "transparently decompress .zst files")
	eflags := registerEngineFlags(fs)

	return func(ctx context.Context) (*outcome, error) {
		params := map[string]string{
			"queue":   *queue,
			"dir":     *dir,
			"pattern": *pattern,
		}
		if *recursive {
			params["recursive"] = "true"
		}
		if *sortBy != source.SortByName {
			params["sort"] = *sortBy
		}
		if *decompress {
			params["decompress"] = "true"
		}

		if *queue == "" || *dir == "" {
			return &outcome{Params: params, ExitCode: 1}, fmt.Errorf("-queue and -dir are required")
		}
		switch *sortBy {
		case source.SortByName, source.SortByMTime, source.SortBySize:
		default:
			return &outcome{Params: params, ExitCode: 1}, fmt.Errorf("invalid -sort %q", *sortBy)
		}

		src, err := source.NewFolder(source.FolderConfig{
			Dir:        *dir,
			Pattern:    *pattern,
			Recursive:  *recursive,
			SortBy:     *sortBy,
			Decompress: *decompress,
		})
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
}
