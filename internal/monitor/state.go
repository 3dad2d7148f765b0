package monitor

import (
	"github.com/fakeyudi/printrescue/internal/recovery"
)

// State is a Monitor lifecycle state.
type State int

const (
	StateIdle State = iota
	StateSubscribed
	StateMonitoring
	StateFinalizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribed:
		return "subscribed"
	case StateMonitoring:
		return "monitoring"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Update is a snapshot of a run, sent to the Observer on every state change
// and every status event.
type Update struct {
	State    State
	JobID    string
	FilePath string
	FileSize uint64
	// Offset is the last positive file offset seen in this run.
	Offset   uint64
	FeedRate float64
	Progress float64

	// Set once the run reaches StateDone.
	Result *recovery.Result
	Err    error
}

// Observer receives run updates. Observe is called from the Monitor's
// goroutine and must not block.
type Observer interface {
	Observe(Update)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Update)

func (f ObserverFunc) Observe(u Update) { f(u) }
