// Package history keeps a log of every finalization the monitor or the
// recover command performed.
package history

import (
	"context"
	"time"
)

// Outcome is how a finalization ended.
type Outcome string

const (
	OutcomeWritten         Outcome = "written"
	OutcomeNothingToResume Outcome = "nothing_to_resume"
	OutcomeFailed          Outcome = "failed"
)

// Record is one finalization.
type Record struct {
	ID           string
	JobID        string
	FilePath     string
	RecoveryPath string
	BackupPath   string
	Offset       uint64
	FeedRate     float64
	Outcome      Outcome
	Error        string
	CreatedAt    time.Time
}

// Store persists and retrieves records.
type Store interface {
	// Add inserts r, assigning ID and CreatedAt when they are empty.
	Add(ctx context.Context, r *Record) error
	// List returns the newest records first.
	List(ctx context.Context, limit int) ([]*Record, error)
	Close() error
}
