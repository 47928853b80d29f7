// Package journal persists emit run summaries in a local SQLite database.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/vespa-engine/metrics-emitter/emitter"
)

// DefaultKeep is how many runs Prune retains when no limit is configured.
const DefaultKeep = 500

// Journal wraps the database connection.
type Journal struct {
	conn *sql.DB
}

// GetConnection returns the underlying database connection (for testing)
func (j *Journal) GetConnection() *sql.DB {
	return j.conn
}

// isCorruptionError checks if an error indicates database corruption
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "malformed") ||
		strings.Contains(errMsg, "corrupt")
}

// deleteDatabase deletes the journal file and associated files (WAL, SHM)
func deleteDatabase(dbPath string) error {
	log.Printf("Deleting journal files at %s", dbPath)

	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete journal file: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: failed to delete %s file: %v", suffix, err)
		}
	}

	log.Printf("Journal files deleted, will create fresh journal")
	return nil
}

// New opens the journal at dbPath, creating it when missing. A corrupted
// journal is deleted and recreated, run history is not worth refusing to
// start for.
func New(dbPath string) (*Journal, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()

		if !isCorruptionError(err) {
			return nil, fmt.Errorf("failed to ping journal: %w", err)
		}

		log.Printf("Journal corruption detected: %v", err)
		if err := deleteDatabase(dbPath); err != nil {
			return nil, fmt.Errorf("failed to delete corrupted journal: %w", err)
		}
		conn, err = sql.Open("sqlite", dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create new journal: %w", err)
		}
	}

	// SQLite works best with a single connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	_, err = conn.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
		PRAGMA synchronous = NORMAL;
	`)
	if err != nil {
		_ = conn.Close()

		if isCorruptionError(err) {
			log.Printf("Journal corruption detected during configuration: %v", err)
			if err := deleteDatabase(dbPath); err != nil {
				return nil, fmt.Errorf("failed to delete corrupted journal: %w", err)
			}
			return New(dbPath)
		}

		return nil, fmt.Errorf("failed to configure journal: %w", err)
	}

	journal := &Journal{conn: conn}

	if err := journal.ensureSchemaVersion(); err != nil {
		_ = conn.Close()

		if isCorruptionError(err) {
			log.Printf("Journal corruption detected during migration: %v", err)
			if err := deleteDatabase(dbPath); err != nil {
				return nil, fmt.Errorf("failed to delete corrupted journal: %w", err)
			}
			return New(dbPath)
		}

		return nil, fmt.Errorf("failed to migrate journal schema: %w", err)
	}

	log.Printf("Journal initialized at %s", dbPath)
	return journal, nil
}

// Run is one recorded emit run.
type Run struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Started    time.Time `json:"started"`
	DurationMS int64     `json:"duration_ms"`
	Points     int       `json:"points"`
	ChunksSent int       `json:"chunks_sent"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
}

// RecordRun stores one run summary.
func (j *Journal) RecordRun(ctx context.Context, summary emitter.Summary) error {
	_, err := j.conn.ExecContext(ctx, `
		INSERT INTO emit_runs (run_id, started, duration_ms, points, chunks_sent, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, summary.RunID, summary.Started.UTC().Format(time.RFC3339Nano), summary.Duration.Milliseconds(),
		summary.Points, summary.ChunksSent, string(summary.Outcome), summary.Detail)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (j *Journal) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit < 1 {
		limit = 20
	}

	rows, err := j.conn.QueryContext(ctx, `
		SELECT id, run_id, started, duration_ms, points, chunks_sent, outcome, detail
		FROM emit_runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := []Run{}
	for rows.Next() {
		var run Run
		var started string
		if err := rows.Scan(&run.ID, &run.RunID, &started, &run.DurationMS, &run.Points, &run.ChunksSent, &run.Outcome, &run.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Started, err = time.Parse(time.RFC3339Nano, started)
		if err != nil {
			return nil, fmt.Errorf("failed to parse run timestamp: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}

	return runs, nil
}

// Prune deletes all but the newest keep runs and reports how many rows were
// removed.
func (j *Journal) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = DefaultKeep
	}

	result, err := j.conn.ExecContext(ctx, `
		DELETE FROM emit_runs
		WHERE id NOT IN (SELECT id FROM emit_runs ORDER BY id DESC LIMIT ?)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned runs: %w", err)
	}
	return deleted, nil
}

// Close closes the journal gracefully.
func Close(j *Journal) error {
	if j == nil || j.conn == nil {
		return nil
	}

	// Checkpoint WAL to ensure all data is written to the main database
	if _, err := j.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("Warning: failed to checkpoint WAL: %v", err)
	}

	return j.conn.Close()
}

var _ emitter.RunRecorder = (*Journal)(nil)
