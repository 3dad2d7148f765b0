// Package monitor follows a running print job over the Moonraker status
// channel, checkpoints its progress and finalizes it when it stops.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fakeyudi/printrescue/internal/checkpoint"
	"github.com/fakeyudi/printrescue/internal/history"
	applog "github.com/fakeyudi/printrescue/internal/log"
	"github.com/fakeyudi/printrescue/internal/moonraker"
	"github.com/fakeyudi/printrescue/internal/recovery"
)

// ErrIdleTimeout is returned when no status update arrives within the
// configured idle timeout.
var ErrIdleTimeout = errors.New("no status update within idle timeout")

// StatusQuerier resolves the file loaded on the printer.
type StatusQuerier interface {
	QueryFile(ctx context.Context) (*moonraker.FileDetails, error)
}

// Stream is a subscribed status channel.
type Stream interface {
	Subscribe(ctx context.Context) (moonraker.JobStatus, error)
	Next(ctx context.Context) (moonraker.JobStatus, error)
	Close() error
}

// DialFunc opens a status channel.
type DialFunc func(ctx context.Context) (Stream, error)

// Config configures a Monitor.
type Config struct {
	Querier StatusQuerier
	Dial    DialFunc
	Store   checkpoint.Store

	History  history.Store // optional
	Observer Observer      // optional
	Logger   *slog.Logger

	Recovery recovery.Options

	// IdleTimeout aborts the run when the channel stays silent this long.
	// Zero waits forever.
	IdleTimeout time.Duration
}

// Monitor drives one job through Idle, Subscribed, Monitoring, Finalizing
// and Done. It is not safe for concurrent use; Run is called once.
type Monitor struct {
	cfg       Config
	logger    *slog.Logger
	finalizer *Finalizer

	jobID    string
	state    State
	file     moonraker.FileDetails
	feedRate float64
	progress float64
	// startOffset is the checkpoint loaded before subscribing, if any.
	startOffset uint64
	hasStart    bool
	// lastOffset is the last positive offset observed in this run.
	lastOffset uint64
}

// New validates cfg and returns a Monitor.
func New(cfg Config) (*Monitor, error) {
	if cfg.Querier == nil {
		return nil, errors.New("monitor: status querier is required")
	}
	if cfg.Dial == nil {
		return nil, errors.New("monitor: dial function is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("monitor: checkpoint store is required")
	}
	if cfg.IdleTimeout < 0 {
		return nil, errors.New("monitor: idle timeout must not be negative")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	jobID := uuid.NewString()
	logger = applog.WithComponent(logger, "monitor")

	return &Monitor{
		cfg:    cfg,
		logger: applog.WithJob(logger, jobID),
		finalizer: &Finalizer{
			Store:    cfg.Store,
			History:  cfg.History,
			Recovery: cfg.Recovery,
			Logger:   logger,
		},
		jobID: jobID,
		state: StateIdle,
	}, nil
}

// JobID identifies this run in logs and history.
func (m *Monitor) JobID() string {
	return m.jobID
}

// State returns the current state.
func (m *Monitor) State() State {
	return m.state
}

// Run resolves the active file, follows the job until it stops and then
// finalizes it. A checkpoint stored before Run starts, typically by an
// earlier run that was interrupted, is the resume point when the job stops.
// Cancelling ctx before the job stops returns ctx.Err() and leaves the
// checkpoint in place for the next run.
func (m *Monitor) Run(ctx context.Context) (*recovery.Result, error) {
	m.emit(nil, nil)

	details, err := m.cfg.Querier.QueryFile(ctx)
	if err != nil {
		return nil, m.fail(err)
	}
	m.file = *details
	m.progress = details.Progress
	m.logger.Info("watching job",
		applog.FileKey, details.FilePath,
		"size", details.FileSize,
		"active", details.IsActive)
	m.transition(StateSubscribed)

	if off, ok := m.cfg.Store.Load(); ok {
		m.startOffset, m.hasStart = off, true
		m.logger.Info("stored checkpoint found",
			applog.OffsetKey, off,
			"checkpoint", m.cfg.Store.Path())
	}

	stream, err := m.cfg.Dial(ctx)
	if err != nil {
		return nil, m.fail(err)
	}
	defer stream.Close()

	snap, err := stream.Subscribe(ctx)
	if err != nil {
		return nil, m.fail(err)
	}
	if snap.FeedRate != nil {
		m.feedRate = *snap.FeedRate
	}
	if snap.Progress != nil {
		m.progress = *snap.Progress
	}

	m.transition(StateMonitoring)
	var terminal moonraker.JobStatus
	for {
		st, err := m.next(ctx, stream)
		if err != nil {
			return nil, m.fail(err)
		}
		if m.apply(st) {
			terminal = st
			break
		}
	}

	m.transition(StateFinalizing)
	job := Job{
		ID:       m.jobID,
		FilePath: m.file.FilePath,
		Offset:   m.resumeOffset(terminal),
		FeedRate: m.feedRate,
	}
	var res *recovery.Result
	if job.Offset == 0 {
		err = m.finalizer.Skip(ctx, job)
	} else {
		res, err = m.finalizer.Finalize(ctx, job)
	}
	m.state = StateDone
	m.emit(res, err)
	return res, err
}

func (m *Monitor) next(ctx context.Context, stream Stream) (moonraker.JobStatus, error) {
	if m.cfg.IdleTimeout <= 0 {
		return stream.Next(ctx)
	}
	deadline := time.Now().Add(m.cfg.IdleTimeout)
	nctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	st, err := stream.Next(nctx)
	if err != nil && ctx.Err() == nil && !time.Now().Before(deadline) {
		return st, fmt.Errorf("%w (%s)", ErrIdleTimeout, m.cfg.IdleTimeout)
	}
	return st, err
}

// apply folds one status event into the run and reports whether the job
// stopped.
func (m *Monitor) apply(st moonraker.JobStatus) bool {
	if st.FeedRate != nil {
		m.feedRate = *st.FeedRate
	}
	if st.Progress != nil {
		m.progress = *st.Progress
	}
	if st.FileOffset != nil && *st.FileOffset > 0 {
		off := *st.FileOffset
		m.lastOffset = off
		if err := m.cfg.Store.Save(off); err != nil {
			m.logger.Warn("saving checkpoint", applog.OffsetKey, off, "error", err)
		} else {
			m.logger.Debug("checkpoint saved", applog.OffsetKey, off)
		}
	}
	m.emit(nil, nil)
	return st.IsActive != nil && !*st.IsActive
}

// resumeOffset prefers the checkpoint loaded at startup, then the terminal
// event's offset, then the last offset seen in this run. Zero means no
// progress was recorded.
func (m *Monitor) resumeOffset(terminal moonraker.JobStatus) uint64 {
	if m.hasStart {
		return m.startOffset
	}
	if terminal.FileOffset != nil && *terminal.FileOffset > 0 {
		return *terminal.FileOffset
	}
	return m.lastOffset
}

func (m *Monitor) transition(s State) {
	m.logger.Debug("state change", "from", m.state.String(), "to", s.String())
	m.state = s
	m.emit(nil, nil)
}

// fail moves the run to Done with err.
func (m *Monitor) fail(err error) error {
	m.logger.Debug("run aborted", "state", m.state.String(), "error", err)
	m.state = StateDone
	m.emit(nil, err)
	return err
}

func (m *Monitor) emit(res *recovery.Result, err error) {
	if m.cfg.Observer == nil {
		return
	}
	m.cfg.Observer.Observe(Update{
		State:    m.state,
		JobID:    m.jobID,
		FilePath: m.file.FilePath,
		FileSize: m.file.FileSize,
		Offset:   m.lastOffset,
		FeedRate: m.feedRate,
		Progress: m.progress,
		Result:   res,
		Err:      err,
	})
}
