package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shovelmq/shovel/audit"
	"github.com/shovelmq/shovel/broker"
	"github.com/shovelmq/shovel/cfg"
	"github.com/shovelmq/shovel/db"
	"github.com/shovelmq/shovel/sink"
	"github.com/shovelmq/shovel/source"
	"github.com/shovelmq/shovel/transfer"
)

// selectFlags resolves the SELECT of db-publish and db-export: either a
// generated table/column query or a validated custom SQL file.
type selectFlags struct {
	table         *string
	contentColumn *string
	keyColumn     *string
	sqlFile       *string
}

func registerSelectFlags(fs *flag.FlagSet) *selectFlags {
	return &selectFlags{
		table:         fs.String("table", "", "table to select from"),
		contentColumn: fs.String("content-column", "", "column holding the message content (required)"),
		keyColumn:     fs.String("key-column", "", "column holding the correlation id"),
		sqlFile:       fs.String("sql-file", "", "file with a custom SELECT statement instead of -table"),
	}
}

func (f *selectFlags) params(into map[string]string) map[string]string {
	if *f.table != "" {
		into["table"] = *f.table
	}
	if *f.sqlFile != "" {
		into["sqlFile"] = *f.sqlFile
	}
	into["contentColumn"] = *f.contentColumn
	if *f.keyColumn != "" {
		into["keyColumn"] = *f.keyColumn
	}
	into["dbPassword"] = audit.MaskSecret(cfg.Config.Database.Password)
	return into
}

// statement builds or loads the SELECT. Custom SQL must parse as a single
// SELECT statement; anything else is rejected before touching the database.
func (f *selectFlags) statement(driver string) (string, error) {
	if *f.contentColumn == "" {
		return "", fmt.Errorf("-content-column is required")
	}
	if (*f.table == "") == (*f.sqlFile == "") {
		return "", fmt.Errorf("exactly one of -table and -sql-file is required")
	}

	if *f.sqlFile != "" {
		raw, err := os.ReadFile(*f.sqlFile)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", *f.sqlFile, err)
		}
		stmt := strings.TrimSpace(string(raw))
		if err := db.ValidateSelect(stmt); err != nil {
			return "", err
		}
		return stmt, nil
	}

	columns := []string{*f.contentColumn}
	if *f.keyColumn != "" {
		columns = append(columns, *f.keyColumn)
	}
	return db.BuildSelect(driver, *f.table, columns)
}

func (f *selectFlags) openSource(ctx context.Context) (*source.Query, *sql.DB, error) {
	stmt, err := f.statement(cfg.Config.Database.Driver)
	if err != nil {
		return nil, nil, err
	}

	conn, err := db.Open(cfg.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	src, err := source.NewQuery(ctx, conn, source.QueryConfig{
		SQL:           stmt,
		ContentColumn: *f.contentColumn,
		KeyColumn:     *f.keyColumn,
	})
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return src, conn, nil
}

func setupDBPublish(fs *flag.FlagSet) runFunc {
	queue := fs.String("queue", "", "destination queue subject (required)")
	sflags := registerSelectFlags(fs)
	eflags := registerEngineFlags(fs)

	return func(ctx context.Context) (*outcome, error) {
		params := sflags.params(map[string]string{"queue": *queue})

		if *queue == "" {
			return &outcome{Params: params, ExitCode: 1}, fmt.Errorf("-queue is required")
		}

		src, conn, err := sflags.openSource(ctx)
		if err != nil {
			return &outcome{Params: params, ExitCode: 1}, err
		}
		defer conn.Close()
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

func setupDBExport(fs *flag.FlagSet) runFunc {
	outDir := fs.String("out-dir", "", "directory to write row files into (required)")
	compress := fs.Bool("compress", false, "zstd-compress each written file")
	sflags := registerSelectFlags(fs)
	eflags := registerEngineFlags(fs)

	return func(ctx context.Context) (*outcome, error) {
		params := sflags.params(map[string]string{"outDir": *outDir})
		if *compress {
			params["compress"] = "true"
		}

		if *outDir == "" {
			return &outcome{Params: params, ExitCode: 1}, fmt.Errorf("-out-dir is required")
		}

		src, conn, err := sflags.openSource(ctx)
		if err != nil {
			return &outcome{Params: params, ExitCode: 1}, err
		}
		defer conn.Close()
		defer src.Close()

		dest, err := sink.NewFiles(*outDir, *compress)
		if err != nil {
			return &outcome{Params: params, ExitCode: 1}, err
		}
		defer dest.Close()

		ecfg, err := eflags.engineConfig(ctx, nil)
		if err != nil {
			return &outcome{Params: params, ExitCode: 1}, err
		}
		ecfg.Source = src
		ecfg.Primary = dest
		return runEngine(ctx, ecfg, eflags.params(params))
	}
}

func setupDBInsert(fs *flag.FlagSet) runFunc {
	queue := fs.String("queue", "", "source queue subject (required)")
	table := fs.String("table", "", "table to insert into (required)")
	contentColumn := fs.String("content-column", "", "column for the message content (required)")
	corrColumn := fs.String("corr-column", "", "column for the correlation id")
	consume := fs.Bool("consume", false, "destructively consume instead of browsing")
	count := fs.Int("count", 100, "maximum number of messages to read")
	waitMS := fs.Int("wait-ms", 2000, "how long to wait for messages")
	eflags := registerEngineFlags(fs)

	return func(ctx context.Context) (*outcome, error) {
		params := map[string]string{
			"queue":         *queue,
			"table":         *table,
			"contentColumn": *contentColumn,
			"count":         strconv.Itoa(*count),
			"dbPassword":    audit.MaskSecret(cfg.Config.Database.Password),
		}
		if *corrColumn != "" {
			params["corrColumn"] = *corrColumn
		}
		if *consume {
			params["consume"] = "true"
		}

		if *queue == "" || *table == "" || *contentColumn == "" {
			return &outcome{Params: params, ExitCode: 1}, fmt.Errorf("-queue, -table, and -content-column are required")
		}

		session, err := connectBroker()
		if err != nil {
			return &outcome{Params: params, ExitCode: 1}, err
		}
		defer session.Close()

		wait := time.Duration(*waitMS) * time.Millisecond
		var src *source.Queue
		if *consume {
			src, err = source.NewConsume(ctx, session, *queue, *count, wait)
		} else {
			src, err = source.NewBrowse(ctx, session, *queue, *count, wait)
		}
		if err != nil {
			return &outcome{Params: params, ExitCode: 1}, err
		}
		defer src.Close()

		conn, err := db.Open(cfg.Config.Database)
		if err != nil {
			return &outcome{Params: params, ExitCode: 1}, err
		}
		defer conn.Close()

		dest, err := sink.NewTable(conn, cfg.Config.Database.Driver, sink.TableConfig{
			Table:             *table,
			ContentColumn:     *contentColumn,
			CorrelationColumn: *corrColumn,
		})
		if err != nil {
			return &outcome{Params: params, ExitCode: 1}, err
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
