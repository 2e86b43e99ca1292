package source

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/shovelmq/shovel/transfer"
)

// QueryConfig names the columns to lift out of the result set. ContentColumn
// is required; KeyColumn, when present, supplies the record key and
// correlation id.
type QueryConfig struct {
	SQL           string
	ContentColumn string
	KeyColumn     string
}

// rowShape is resolved once from the first result set metadata, so per-row
// scanning never searches column names again.
type rowShape struct {
	contentIdx int
	keyIdx     int // -1 when no key column configured
	width      int
}

// Query streams rows from an already-validated SELECT statement.
type Query struct {
	rows  *sql.Rows
	shape rowShape
	seq   int
}

// NewQuery executes the statement and resolves the column layout. Column
// name matching is case-insensitive, the way most drivers report identifiers.
func NewQuery(ctx context.Context, conn *sql.DB, conf QueryConfig) (*Query, error) {
	if conf.ContentColumn == "" {
		return nil, fmt.Errorf("query source requires a content column")
	}

	rows, err := conn.QueryContext(ctx, conf.SQL)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	shape := rowShape{contentIdx: -1, keyIdx: -1, width: len(cols)}
	for i, col := range cols {
		if strings.EqualFold(col, conf.ContentColumn) {
			shape.contentIdx = i
		}
		if conf.KeyColumn != "" && strings.EqualFold(col, conf.KeyColumn) {
			shape.keyIdx = i
		}
	}
	if shape.contentIdx < 0 {
		rows.Close()
		return nil, fmt.Errorf("result set has no column %q", conf.ContentColumn)
	}
	if conf.KeyColumn != "" && shape.keyIdx < 0 {
		rows.Close()
		return nil, fmt.Errorf("result set has no column %q", conf.KeyColumn)
	}

	log.Debug().Strs("columns", cols).Msg("Resolved query result shape")
	return &Query{rows: rows, shape: shape}, nil
}

func (q *Query) Next() (*transfer.Record, error) {
	if !q.rows.Next() {
		if err := q.rows.Err(); err != nil {
			return nil, fmt.Errorf("row iteration failed: %w", err)
		}
		return nil, io.EOF
	}

	dest := make([]any, q.shape.width)
	for i := range dest {
		dest[i] = new(sql.RawBytes)
	}
	if err := q.rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	q.seq++
	rec := &transfer.Record{
		Payload: append([]byte(nil), *dest[q.shape.contentIdx].(*sql.RawBytes)...),
	}
	if q.shape.keyIdx >= 0 {
		key := string(*dest[q.shape.keyIdx].(*sql.RawBytes))
		rec.Key = key
		if key != "" {
			rec.CorrelationID = &key
		}
	}
	if rec.Key == "" {
		rec.Key = fmt.Sprintf("row_%d", q.seq)
	}
	return rec, nil
}

func (q *Query) Close() error {
	return q.rows.Close()
}
