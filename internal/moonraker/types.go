// Package moonraker talks to a Moonraker API server: a one-shot query for the
// file being printed and a websocket subscription to job status updates.
package moonraker

import "encoding/json"

// JobStatus is one status update for the running job. Moonraker only sends
// fields that changed, so every field is optional.
type JobStatus struct {
	IsActive   *bool
	FileOffset *uint64
	// FeedRate is gcode_move.speed as Klipper reports it, in mm/s. It is
	// passed to the G1 F line unconverted.
	FeedRate *float64
	Progress *float64
}

// Empty reports whether the update carries no job fields at all.
func (s JobStatus) Empty() bool {
	return s.IsActive == nil && s.FileOffset == nil && s.FeedRate == nil && s.Progress == nil
}

// FileDetails describes the file loaded on the virtual SD card.
type FileDetails struct {
	FilePath     string
	FileSize     uint64
	FilePosition uint64
	IsActive     bool
	Progress     float64
}

// Objects subscribed to on the status channel.
const (
	objectVirtualSDCard = "virtual_sdcard"
	objectGcodeMove     = "gcode_move"
)

type virtualSDCard struct {
	FilePath     *string  `json:"file_path"`
	FileSize     *uint64  `json:"file_size"`
	FilePosition *uint64  `json:"file_position"`
	IsActive     *bool    `json:"is_active"`
	Progress     *float64 `json:"progress"`
}

type gcodeMove struct {
	Speed *float64 `json:"speed"`
}

type statusObjects struct {
	VirtualSDCard *virtualSDCard `json:"virtual_sdcard"`
	GcodeMove     *gcodeMove     `json:"gcode_move"`
}

func (o statusObjects) jobStatus() JobStatus {
	var s JobStatus
	if o.VirtualSDCard != nil {
		s.IsActive = o.VirtualSDCard.IsActive
		s.FileOffset = o.VirtualSDCard.FilePosition
		s.Progress = o.VirtualSDCard.Progress
	}
	if o.GcodeMove != nil {
		s.FeedRate = o.GcodeMove.Speed
	}
	return s
}

type queryResponse struct {
	Result *struct {
		Status statusObjects `json:"status"`
	} `json:"result"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      int    `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcMessage covers both responses (ID set) and notifications (Method set).
type rpcMessage struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	Result  json.RawMessage   `json:"result"`
	Error   *rpcError         `json:"error"`
	ID      *int              `json:"id"`
}
