package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/quantumflow/annealflow/internal/models"
)

// SQLiteStore implements AgentStore using SQLite. Profiles are stored as JSON
// documents; every task result seen in a saved profile is also copied into
// the task_results table, which outlives the capped in-profile history.
type SQLiteStore struct {
	db *sql.DB
}

// ResultFilter narrows QueryResults
type ResultFilter struct {
	AgentID   *string
	Success   *bool
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// NewSQLiteStore opens the database at path. ":memory:" gives a private
// in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, storeErr(BackendSQLite, "open", fmt.Errorf("failed to create directory: %w", err))
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, storeErr(BackendSQLite, "open", fmt.Errorf("failed to open database: %w", err))
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, storeErr(BackendSQLite, "open", fmt.Errorf("failed to initialize schema: %w", err))
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task_results (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		task TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		quality REAL NOT NULL,
		duration_ms INTEGER NOT NULL,
		iterations INTEGER NOT NULL,
		cancelled BOOLEAN NOT NULL,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_agent ON task_results(agent_id);
	CREATE INDEX IF NOT EXISTS idx_results_timestamp ON task_results(timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// LoadAll reads every profile document
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]*models.AgentProfile, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM agents ORDER BY created_at, id")
	if err != nil {
		return nil, storeErr(BackendSQLite, "load", err)
	}
	defer rows.Close()

	var profiles []*models.AgentProfile
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, storeErr(BackendSQLite, "load", err)
		}
		profile, err := decodeProfile([]byte(data))
		if err != nil {
			return nil, storeErr(BackendSQLite, "load", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(BackendSQLite, "load", err)
	}

	sortByCreation(profiles)
	return profiles, nil
}

// SaveAll replaces the agents table. Task results are append-only and stay.
func (s *SQLiteStore) SaveAll(ctx context.Context, profiles []*models.AgentProfile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(BackendSQLite, "save all", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM agents"); err != nil {
		return storeErr(BackendSQLite, "save all", err)
	}
	for _, p := range profiles {
		if err := upsertProfile(ctx, tx, p); err != nil {
			return storeErr(BackendSQLite, "save all", err)
		}
	}
	return storeErr(BackendSQLite, "save all", tx.Commit())
}

// Save upserts one profile and records its task results
func (s *SQLiteStore) Save(ctx context.Context, profile *models.AgentProfile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(BackendSQLite, "save", err)
	}
	defer tx.Rollback()

	if err := upsertProfile(ctx, tx, profile); err != nil {
		return storeErr(BackendSQLite, "save", err)
	}
	return storeErr(BackendSQLite, "save", tx.Commit())
}

func upsertProfile(ctx context.Context, tx *sql.Tx, profile *models.AgentProfile) error {
	data, err := encodeProfile(profile)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO agents (id, name, category, created_at, updated_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at,
			data = excluded.data
	`,
		profile.ID,
		profile.Name,
		string(profile.Category),
		profile.CreatedAt,
		profile.UpdatedAt,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert agent %s: %w", profile.ID, err)
	}

	for _, r := range profile.TaskHistory {
		if r.ID == "" {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO task_results (
				id, agent_id, task, success, quality, duration_ms, iterations, cancelled, timestamp
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			r.ID,
			profile.ID,
			r.Task,
			r.Success,
			r.Quality,
			r.Duration.Milliseconds(),
			r.Iterations,
			r.Cancelled,
			r.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to record result %s: %w", r.ID, err)
		}
	}
	return nil
}

// Delete removes one profile. Its task results are kept.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM agents WHERE id = ?", id)
	return storeErr(BackendSQLite, "delete", err)
}

// QueryResults returns recorded task results, newest first. Result text and
// improvement lists are not kept in the table.
func (s *SQLiteStore) QueryResults(ctx context.Context, filter *ResultFilter) ([]*models.TaskResult, error) {
	query := "SELECT id, agent_id, task, success, quality, duration_ms, iterations, cancelled, timestamp FROM task_results WHERE 1=1"
	args := []interface{}{}

	if filter == nil {
		filter = &ResultFilter{}
	}
	if filter.AgentID != nil {
		query += " AND agent_id = ?"
		args = append(args, *filter.AgentID)
	}
	if filter.Success != nil {
		query += " AND success = ?"
		args = append(args, *filter.Success)
	}
	if filter.StartTime != nil {
		query += " AND timestamp >= ?"
		args = append(args, *filter.StartTime)
	}
	if filter.EndTime != nil {
		query += " AND timestamp <= ?"
		args = append(args, *filter.EndTime)
	}

	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(BackendSQLite, "query results", err)
	}
	defer rows.Close()

	var results []*models.TaskResult
	for rows.Next() {
		var r models.TaskResult
		var durationMs int64

		err := rows.Scan(
			&r.ID,
			&r.AgentID,
			&r.Task,
			&r.Success,
			&r.Quality,
			&durationMs,
			&r.Iterations,
			&r.Cancelled,
			&r.Timestamp,
		)
		if err != nil {
			return nil, storeErr(BackendSQLite, "query results", err)
		}

		r.Duration = time.Duration(durationMs) * time.Millisecond
		results = append(results, &r)
	}

	return results, storeErr(BackendSQLite, "query results", rows.Err())
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
