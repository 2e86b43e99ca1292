package sink

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/shovelmq/shovel/db"
	"github.com/shovelmq/shovel/transfer"
)

// TableConfig is the typed column descriptor for database inserts: the
// content column is required, the correlation column optional. It is
// resolved once at construction, never per row.
type TableConfig struct {
	Table             string
	ContentColumn     string
	CorrelationColumn string
}

// Table delivers records as rows inserted into one database table. The
// connection is owned by the caller and reused across all records.
type Table struct {
	db      *sql.DB
	dialect goqu.DialectWrapper
	conf    TableConfig
}

// NewTable creates a table destination. driver selects the SQL dialect
// (sqlite3, mysql, or postgres).
func NewTable(conn *sql.DB, driver string, conf TableConfig) (*Table, error) {
	if conf.Table == "" {
		return nil, fmt.Errorf("table destination requires a table name")
	}
	if conf.ContentColumn == "" {
		return nil, fmt.Errorf("table destination requires a content column")
	}

	dialect, err := db.Dialect(driver)
	if err != nil {
		return nil, err
	}

	return &Table{db: conn, dialect: dialect, conf: conf}, nil
}

func (t *Table) Name() string {
	return "table:" + t.conf.Table
}

func (t *Table) Deliver(ctx context.Context, rec *transfer.Record) error {
	row := goqu.Record{t.conf.ContentColumn: string(rec.Payload)}
	if t.conf.CorrelationColumn != "" && rec.CorrelationID != nil {
		row[t.conf.CorrelationColumn] = *rec.CorrelationID
	}

	query, args, err := t.dialect.Insert(t.conf.Table).Rows(row).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build insert for %s: %w", t.conf.Table, err)
	}

	if _, err := t.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert into %s failed: %w", t.conf.Table, err)
	}
	return nil
}

// Close is a no-op; the connection outlives the destination
func (t *Table) Close() error {
	return nil
}
