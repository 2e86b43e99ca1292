// Package db opens relational database connections and builds the SQL
// used by the transfer commands. One connection per run, reused across
// all records.
package db

import (
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/shovelmq/shovel/cfg"
)

// Open connects using the configured driver and DSN and verifies the
// connection with a ping. A refused connection is a run-fatal resource
// error.
func Open(conf cfg.DatabaseConfiguration) (*sql.DB, error) {
	if conf.DSN == "" {
		return nil, fmt.Errorf("database dsn must not be empty")
	}

	conn, err := sql.Open(conf.Driver, conf.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", conf.Driver, err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to reach %s database: %w", conf.Driver, err)
	}

	log.Debug().Str("driver", conf.Driver).Msg("Connected to database")
	return conn, nil
}

// Dialect maps a driver name to a goqu SQL dialect
func Dialect(driver string) (goqu.DialectWrapper, error) {
	switch driver {
	case "sqlite3", "mysql", "postgres":
		return goqu.Dialect(driver), nil
	default:
		return goqu.DialectWrapper{}, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// BuildSelect builds the SELECT for a table/columns source. Columns are
// projected in the given order so the result-set descriptor can be
// resolved by name afterwards.
func BuildSelect(driver, table string, columns []string) (string, error) {
	dialect, err := Dialect(driver)
	if err != nil {
		return "", err
	}

	cols := make([]any, 0, len(columns))
	for _, c := range columns {
		cols = append(cols, goqu.C(c))
	}

	query, _, err := dialect.From(table).Select(cols...).ToSQL()
	if err != nil {
		return "", fmt.Errorf("failed to build select for %s: %w", table, err)
	}
	return query, nil
}
