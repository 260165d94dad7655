// Package dataset persists analysis exchanges to a local SQLite database so
// prompt and model changes can be evaluated against real traffic later.
package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/auralens/auralens/pkg/session"
)

// Entry is one recorded analysis exchange
type Entry struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Operation string    `json:"operation"`
	Model     string    `json:"model"`
	MediaPath string    `json:"media_path,omitempty"`
	Prompt    string    `json:"prompt"`
	Output    string    `json:"output"`
	ElapsedMS int64     `json:"elapsed_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarizes the recorded dataset
type Stats struct {
	TotalEntries int            `json:"total_entries"`
	ByOperation  map[string]int `json:"by_operation"`
}

// Recorder writes analysis samples to SQLite. It satisfies
// session.AnalysisRecorder.
type Recorder struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewRecorder opens or creates the dataset database at path
func NewRecorder(path string, logger zerolog.Logger) (*Recorder, error) {
	if path == "" {
		return nil, errors.New("dataset: database path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset database: %w", err)
	}

	// WAL lets the pipeline keep writing while readers export
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	r := &Recorder{
		db:     db,
		logger: logger.With().Str("module", "dataset").Logger(),
	}

	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize dataset schema: %w", err)
	}

	r.logger.Info().Str("path", path).Msg("Dataset recorder initialized")
	return r, nil
}

func (r *Recorder) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS analysis_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			model TEXT NOT NULL,
			media_path TEXT,
			prompt TEXT NOT NULL,
			output TEXT NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_samples_session ON analysis_samples(session_id);
		CREATE INDEX IF NOT EXISTS idx_samples_operation ON analysis_samples(operation);
	`

	_, err := r.db.Exec(schema)
	return err
}

// Record inserts one analysis sample
func (r *Recorder) Record(ctx context.Context, sample session.Sample) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO analysis_samples
			(session_id, operation, model, media_path, prompt, output, elapsed_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sample.SessionID, sample.Operation, sample.Model, sample.MediaPath,
		sample.Prompt, sample.Output, sample.ElapsedMS, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record analysis sample: %w", err)
	}
	return nil
}

// BySession returns the samples recorded for one session, oldest first
func (r *Recorder) BySession(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, operation, model, COALESCE(media_path, ''), prompt, output, elapsed_ms, created_at
		 FROM analysis_samples
		 WHERE session_id = ?
		 ORDER BY id ASC
		 LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Operation, &e.Model, &e.MediaPath,
			&e.Prompt, &e.Output, &e.ElapsedMS, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Status summarizes the recorded dataset
func (r *Recorder) Status(ctx context.Context) (Stats, error) {
	stats := Stats{ByOperation: make(map[string]int)}

	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM analysis_samples").Scan(&stats.TotalEntries); err != nil {
		return stats, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT operation, COUNT(*) FROM analysis_samples GROUP BY operation")
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var op string
		var count int
		if err := rows.Scan(&op, &count); err != nil {
			return stats, err
		}
		stats.ByOperation[op] = count
	}
	return stats, rows.Err()
}

// Close closes the underlying database
func (r *Recorder) Close() error {
	return r.db.Close()
}
