package sink

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shovelmq/shovel/transfer"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE messages (id INTEGER PRIMARY KEY, body TEXT NOT NULL, corr_id TEXT)`)
	require.NoError(t, err)
	return db
}

func TestTableInsertsContentAndCorrelation(t *testing.T) {
	db := openTestDB(t)
	dest, err := NewTable(db, "sqlite3", TableConfig{
		Table:             "messages",
		ContentColumn:     "body",
		CorrelationColumn: "corr_id",
	})
	require.NoError(t, err)

	corr := "corr-9"
	require.NoError(t, dest.Deliver(context.Background(), &transfer.Record{
		Key:           "corr-9",
		Payload:       []byte("hello row"),
		CorrelationID: &corr,
		Index:         1,
	}))

	var body, corrID string
	require.NoError(t, db.QueryRow(`SELECT body, corr_id FROM messages`).Scan(&body, &corrID))
	assert.Equal(t, "hello row", body)
	assert.Equal(t, "corr-9", corrID)
}

func TestTableInsertsWithoutCorrelationColumn(t *testing.T) {
	db := openTestDB(t)
	dest, err := NewTable(db, "sqlite3", TableConfig{
		Table:         "messages",
		ContentColumn: "body",
	})
	require.NoError(t, err)

	require.NoError(t, dest.Deliver(context.Background(), &transfer.Record{
		Key:     "k",
		Payload: []byte("no corr"),
		Index:   1,
	}))

	var body string
	var corrID sql.NullString
	require.NoError(t, db.QueryRow(`SELECT body, corr_id FROM messages`).Scan(&body, &corrID))
	assert.Equal(t, "no corr", body)
	assert.False(t, corrID.Valid)
}

func TestTableDeliverErrorIsPerRecord(t *testing.T) {
	db := openTestDB(t)
	dest, err := NewTable(db, "sqlite3", TableConfig{
		Table:         "missing_table",
		ContentColumn: "body",
	})
	require.NoError(t, err)

	err = dest.Deliver(context.Background(), &transfer.Record{Key: "k", Payload: []byte("x"), Index: 1})
	assert.Error(t, err)
}

func TestNewTableValidation(t *testing.T) {
	db := openTestDB(t)

	_, err := NewTable(db, "sqlite3", TableConfig{ContentColumn: "body"})
	assert.Error(t, err)

	_, err = NewTable(db, "sqlite3", TableConfig{Table: "messages"})
	assert.Error(t, err)

	_, err = NewTable(db, "oracle", TableConfig{Table: "messages", ContentColumn: "body"})
	assert.Error(t, err)
}
