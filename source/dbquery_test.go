package source

import (
	"context"
	"database/sql"
	"io"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func openQueryDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = conn.Exec(`CREATE TABLE outbox (id INTEGER PRIMARY KEY, msg_id TEXT, body BLOB)`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO outbox (msg_id, body) VALUES
		('ORD-1', 'first'), ('ORD-2', 'second'), (NULL, 'third')`)
	require.NoError(t, err)
	return conn
}

func TestQueryYieldsRowsInOrder(t *testing.T) {
	conn := openQueryDB(t)

	q, err := NewQuery(context.Background(), conn, QueryConfig{
		SQL:           "SELECT msg_id, body FROM outbox ORDER BY id",
		ContentColumn: "body",
		KeyColumn:     "msg_id",
	})
	require.NoError(t, err)
	defer q.Close()

	rec, err := q.Next()
	require.NoError(t, err)
	require.Equal(t, "ORD-1", rec.Key)
	require.NotNil(t, rec.CorrelationID)
	require.Equal(t, "ORD-1", *rec.CorrelationID)
	require.Equal(t, []byte("first"), rec.Payload)

	rec, err = q.Next()
	require.NoError(t, err)
	require.Equal(t, []byte("second"), rec.Payload)

	rec, err = q.Next()
	require.NoError(t, err)
	require.Nil(t, rec.CorrelationID)
	require.Equal(t, "row_3", rec.Key)

	_, err = q.Next()
	require.Equal(t, io.EOF, err)
}

func TestQueryContentOnly(t *testing.T) {
	conn := openQueryDB(t)

	q, err := NewQuery(context.Background(), conn, QueryConfig{
		SQL:           "SELECT body FROM outbox ORDER BY id",
		ContentColumn: "body",
	})
	require.NoError(t, err)
	defer q.Close()

	rec, err := q.Next()
	require.NoError(t, err)
	require.Nil(t, rec.CorrelationID)
	require.Equal(t, "row_1", rec.Key)
}

func TestQueryColumnMatchIsCaseInsensitive(t *testing.T) {
	conn := openQueryDB(t)

	q, err := NewQuery(context.Background(), conn, QueryConfig{
		SQL:           "SELECT msg_id, body FROM outbox ORDER BY id",
		ContentColumn: "BODY",
		KeyColumn:     "MSG_ID",
	})
	require.NoError(t, err)
	defer q.Close()

	rec, err := q.Next()
	require.NoError(t, err)
	require.Equal(t, "ORD-1", rec.Key)
}

func TestQueryMissingContentColumn(t *testing.T) {
	conn := openQueryDB(t)

	_, err := NewQuery(context.Background(), conn, QueryConfig{
		SQL:           "SELECT msg_id FROM outbox",
		ContentColumn: "body",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "body")
}

func TestQueryMissingKeyColumn(t *testing.T) {
	conn := openQueryDB(t)

	_, err := NewQuery(context.Background(), conn, QueryConfig{
		SQL:           "SELECT body FROM outbox",
		ContentColumn: "body",
		KeyColumn:     "msg_id",
	})
	require.Error(t, err)
}

func TestQueryRequiresContentColumnName(t *testing.T) {
	conn := openQueryDB(t)

	_, err := NewQuery(context.Background(), conn, QueryConfig{SQL: "SELECT body FROM outbox"})
	require.Error(t, err)
}

func TestQueryBadStatement(t *testing.T) {
	conn := openQueryDB(t)

	_, err := NewQuery(context.Background(), conn, QueryConfig{
		SQL:           "SELECT nope FROM missing",
		ContentColumn: "body",
	})
	require.Error(t, err)
}
