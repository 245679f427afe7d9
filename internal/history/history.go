// Package history persists log entries and latency samples to SQLite so a
// restarted dashboard can show what happened before. Writes are
// best-effort: failures are logged and never stop the state store.
package history

import (
	"database/sql"
	"fmt"

	"github.com/rmxlab/flashdash/internal/state"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS logs (
	ts        TIMESTAMP NOT NULL,
	level     TEXT NOT NULL,
	message   TEXT NOT NULL,
	component TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS latency (
	ts         TIMESTAMP NOT NULL,
	latency_ms REAL NOT NULL
);`

// Recorder appends store events to a SQLite database.
type Recorder struct {
	db *sql.DB
}

// Open creates or opens the database at path and ensures the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &Recorder{db: db}, nil
}

// Attach registers the recorder on the store's logs and latency topics.
func (r *Recorder) Attach(store *state.Store) {
	store.AddListener(state.TopicLogs, "history", r.record)
	store.AddListener(state.TopicLatency, "history", r.record)
}

// record persists the newest entry of the event's buffer.
func (r *Recorder) record(ev state.Event) {
	switch ev.Topic {
	case state.TopicLogs:
		if n := len(ev.State.Logs); n > 0 {
			entry := ev.State.Logs[n-1]
			_, err := r.db.Exec(
				"INSERT INTO logs (ts, level, message, component) VALUES (?, ?, ?, ?)",
				entry.Timestamp, entry.Level, entry.Message, entry.Component,
			)
			if err != nil {
				log.Warn().Err(err).Msg("History log insert failed")
			}
		}
	case state.TopicLatency:
		if n := len(ev.State.Latency); n > 0 {
			point := ev.State.Latency[n-1]
			_, err := r.db.Exec(
				"INSERT INTO latency (ts, latency_ms) VALUES (?, ?)",
				point.Timestamp, point.LatencyMs,
			)
			if err != nil {
				log.Warn().Err(err).Msg("History latency insert failed")
			}
		}
	}
}

// CountLogs returns the number of persisted log entries.
func (r *Recorder) CountLogs() (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM logs").Scan(&n)
	return n, err
}

// CountLatency returns the number of persisted latency samples.
func (r *Recorder) CountLatency() (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM latency").Scan(&n)
	return n, err
}

// Close closes the underlying database.
func (r *Recorder) Close() error {
	return r.db.Close()
}
