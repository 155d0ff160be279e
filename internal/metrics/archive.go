package metrics

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Archive is an append-only sqlite store of metric samples, so call
// outcomes survive process restarts. Writes are best-effort: a failed
// insert is logged and dropped rather than surfaced to the caller,
// because losing one metric sample must never fail a conversation
// turn. SQLite serializes writes, so Archive is safe for concurrent
// use.
type Archive struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewArchive opens (or creates) the archive database at path. The
// schema is created automatically on first use.
func NewArchive(path string, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open metrics archive: %w", err)
	}

	a := &Archive{db: db, logger: logger}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate metrics schema: %w", err)
	}
	return a, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS metric_samples (
		id            TEXT PRIMARY KEY,
		timestamp     TEXT NOT NULL,
		model         TEXT NOT NULL,
		latency_ms    INTEGER NOT NULL,
		success       INTEGER NOT NULL,
		input_tokens  INTEGER,
		output_tokens INTEGER,
		error         TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_samples_timestamp ON metric_samples(timestamp);
	CREATE INDEX IF NOT EXISTS idx_samples_model ON metric_samples(model);
	`
	_, err := a.db.Exec(schema)
	return err
}

// Record persists one sample. Token columns stay NULL when the provider
// reported no usage, so aggregation queries can distinguish "zero
// tokens" from "unknown".
func (a *Archive) Record(s Sample) {
	id, err := uuid.NewV7()
	if err != nil {
		a.logger.Warn("generate sample ID", "error", err)
		return
	}

	var input, output any
	if s.Tokens != nil {
		input, output = s.Tokens.Input, s.Tokens.Output
	}

	_, err = a.db.Exec(
		`INSERT INTO metric_samples
			(id, timestamp, model, latency_ms, success, input_tokens, output_tokens, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(),
		s.Timestamp.UTC().Format(time.RFC3339Nano),
		s.Model,
		s.Latency.Milliseconds(),
		s.Success,
		input,
		output,
		s.Error,
	)
	if err != nil {
		a.logger.Warn("archive metric sample", "error", err)
	}
}

// Recent returns up to limit archived samples, newest first.
func (a *Archive) Recent(limit int) ([]Sample, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := a.db.Query(
		`SELECT timestamp, model, latency_ms, success, input_tokens, output_tokens, error
		 FROM metric_samples ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query archived samples: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var (
			ts            string
			s             Sample
			latencyMS     int64
			input, output sql.NullInt64
		)
		if err := rows.Scan(&ts, &s.Model, &latencyMS, &s.Success, &input, &output, &s.Error); err != nil {
			return nil, fmt.Errorf("scan archived sample: %w", err)
		}
		s.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		s.Latency = time.Duration(latencyMS) * time.Millisecond
		if input.Valid {
			s.Tokens = &TokenUsage{Input: int(input.Int64), Output: int(output.Int64)}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Count returns the number of archived samples.
func (a *Archive) Count() (int, error) {
	var n int
	if err := a.db.QueryRow(`SELECT COUNT(*) FROM metric_samples`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count archived samples: %w", err)
	}
	return n, nil
}
