package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fakeyudi/printrescue/internal/checkpoint"
	"github.com/fakeyudi/printrescue/internal/history"
	applog "github.com/fakeyudi/printrescue/internal/log"
	"github.com/fakeyudi/printrescue/internal/recovery"
)

// Job identifies a stopped job and where to resume it.
type Job struct {
	ID       string
	FilePath string
	Offset   uint64
	FeedRate float64
}

// Finalizer backs up a stopped job's file, writes its recovery file and
// clears the checkpoint. It is shared by the Monitor and the offline
// recover command.
type Finalizer struct {
	Store    checkpoint.Store
	History  history.Store // optional
	Recovery recovery.Options
	Logger   *slog.Logger
}

// Finalize runs the recovery pipeline for job, resuming at job.Offset. The
// checkpoint is cleared only when the pipeline succeeded.
func (f *Finalizer) Finalize(ctx context.Context, job Job) (*recovery.Result, error) {
	logger := f.jobLogger(job)

	var errs []error
	outcome := history.OutcomeNothingToResume

	res, err := recovery.Recover(job.FilePath, job.Offset, job.FeedRate, f.Recovery)
	switch {
	case err != nil:
		outcome = history.OutcomeFailed
		errs = append(errs, fmt.Errorf("recover %s: %w", job.FilePath, err))
		logger.Error("recovery failed", "error", err)
	case res.Written:
		outcome = history.OutcomeWritten
		logger.Info("recovery file written",
			applog.OffsetKey, res.Fragments.Cut,
			"recovery", res.RecoveryPath,
			"backup", res.BackupPath,
			"feed_rate", job.FeedRate,
			"position", res.Fragments.PositionLine)
	default:
		logger.Info("remainder is empty, nothing to resume", applog.OffsetKey, job.Offset)
	}

	if outcome != history.OutcomeFailed {
		if err := f.Store.Clear(); err != nil {
			errs = append(errs, err)
			logger.Error("clearing checkpoint", "error", err)
		}
	}

	err = errors.Join(errs...)
	f.record(ctx, logger, job, &res, outcome, err)
	return &res, err
}

// Skip closes out a job that stopped before any progress was recorded. No
// file is written; the job is recorded as having nothing to resume.
func (f *Finalizer) Skip(ctx context.Context, job Job) error {
	logger := f.jobLogger(job)
	logger.Info("no progress recorded, nothing to resume")

	var err error
	if cerr := f.Store.Clear(); cerr != nil {
		err = cerr
		logger.Error("clearing checkpoint", "error", cerr)
	}
	f.record(ctx, logger, job, nil, history.OutcomeNothingToResume, err)
	return err
}

// jobLogger tags the finalizer's logger with the job. Callers pass a logger
// without the job attached.
func (f *Finalizer) jobLogger(job Job) *slog.Logger {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return applog.WithJob(logger, job.ID).With(applog.FileKey, job.FilePath)
}

// record appends a history entry. Failures are logged only.
func (f *Finalizer) record(ctx context.Context, logger *slog.Logger, job Job, res *recovery.Result, outcome history.Outcome, err error) {
	if f.History == nil {
		return
	}
	rec := &history.Record{
		JobID:    job.ID,
		FilePath: job.FilePath,
		Offset:   job.Offset,
		FeedRate: job.FeedRate,
		Outcome:  outcome,
	}
	if res != nil {
		rec.BackupPath = res.BackupPath
		if res.Written {
			rec.RecoveryPath = res.RecoveryPath
		}
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if herr := f.History.Add(context.WithoutCancel(ctx), rec); herr != nil {
		logger.Warn("recording history", "error", herr)
	}
}
