package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// FileName is the history database name inside the data directory.
const FileName = "history.db"

// SQLiteStore is a SQLite-backed implementation of Store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; also keeps :memory: on a single connection.
	db.SetMaxOpenConns(1)

	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err = s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS recoveries (
			id            TEXT PRIMARY KEY,
			job_id        TEXT NOT NULL DEFAULT '',
			file_path     TEXT NOT NULL,
			recovery_path TEXT NOT NULL DEFAULT '',
			backup_path   TEXT NOT NULL DEFAULT '',
			resume_offset INTEGER NOT NULL DEFAULT 0,
			feed_rate     REAL NOT NULL DEFAULT 0,
			outcome       TEXT NOT NULL,
			error         TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_recoveries_created_at ON recoveries(created_at);
	`)
	return err
}

func (s *SQLiteStore) Add(ctx context.Context, r *Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recoveries
			(id, job_id, file_path, recovery_path, backup_path, resume_offset, feed_rate, outcome, error, created_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.JobID,
		r.FilePath,
		r.RecoveryPath,
		r.BackupPath,
		int64(r.Offset),
		r.FeedRate,
		string(r.Outcome),
		r.Error,
		r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("add history record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, file_path, recovery_path, backup_path, resume_offset,
		       feed_rate, outcome, error, created_at
		FROM recoveries
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r := &Record{}
		var offset int64
		var outcome string
		if err := rows.Scan(
			&r.ID, &r.JobID, &r.FilePath, &r.RecoveryPath, &r.BackupPath,
			&offset, &r.FeedRate, &outcome, &r.Error, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		r.Offset = uint64(offset)
		r.Outcome = Outcome(outcome)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return records, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
