package moonraker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const methodStatusUpdate = "notify_status_update"

var (
	// ErrSubscribe is returned when the status subscription is refused or
	// the channel closes before acknowledging it.
	ErrSubscribe = errors.New("moonraker: subscription failed")

	// ErrDisconnected is returned once the status channel is gone.
	ErrDisconnected = errors.New("moonraker: status channel disconnected")
)

// Stream is an open status channel. Subscribe must be called once before Next.
type Stream struct {
	conn *websocket.Conn

	mu     sync.Mutex
	nextID int
}

// Dial opens the status channel.
func (c *Client) Dial(ctx context.Context) (*Stream, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.http.Timeout}
	conn, resp, err := dialer.DialContext(ctx, c.wsURL, c.header())
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial %s: %w (status %d)", ErrDisconnected, c.wsURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: dial %s: %w", ErrDisconnected, c.wsURL, err)
	}
	return &Stream{conn: conn, nextID: 1}, nil
}

// Subscribe asks for virtual_sdcard and gcode_move updates and returns the
// status snapshot carried by the acknowledgement.
func (s *Stream) Subscribe(ctx context.Context) (JobStatus, error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  "printer.objects.subscribe",
		Params: map[string]any{
			"objects": map[string]any{
				objectVirtualSDCard: nil,
				objectGcodeMove:     nil,
			},
		},
		ID: id,
	}

	stop := s.bind(ctx)
	defer stop()

	if err := s.conn.WriteJSON(req); err != nil {
		return JobStatus{}, s.readErr(ctx, fmt.Errorf("%w: %w", ErrSubscribe, err))
	}

	for {
		msg, err := s.read()
		if err != nil {
			if errors.Is(err, errMalformed) {
				continue
			}
			return JobStatus{}, s.readErr(ctx, fmt.Errorf("%w: %w", ErrSubscribe, err))
		}
		if msg.ID == nil || *msg.ID != id {
			// Notifications racing ahead of the ack carry nothing the
			// snapshot will not.
			continue
		}
		if msg.Error != nil {
			return JobStatus{}, fmt.Errorf("%w: %s (code %d)", ErrSubscribe, msg.Error.Message, msg.Error.Code)
		}
		var result struct {
			Status statusObjects `json:"status"`
		}
		if len(msg.Result) > 0 {
			if err := json.Unmarshal(msg.Result, &result); err != nil {
				return JobStatus{}, fmt.Errorf("%w: decode result: %w", ErrSubscribe, err)
			}
		}
		return result.Status.jobStatus(), nil
	}
}

// Next blocks until a status notification with job fields arrives.
// Malformed messages and unrelated notifications are skipped.
func (s *Stream) Next(ctx context.Context) (JobStatus, error) {
	stop := s.bind(ctx)
	defer stop()

	for {
		msg, err := s.read()
		if err != nil {
			if errors.Is(err, errMalformed) {
				continue
			}
			return JobStatus{}, s.readErr(ctx, err)
		}
		if msg.Method != methodStatusUpdate || len(msg.Params) == 0 {
			continue
		}
		var objs statusObjects
		if err := json.Unmarshal(msg.Params[0], &objs); err != nil {
			continue
		}
		if st := objs.jobStatus(); !st.Empty() {
			return st, nil
		}
	}
}

// Close closes the channel.
func (s *Stream) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}

var errMalformed = errors.New("malformed message")

func (s *Stream) read() (rpcMessage, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return rpcMessage{}, fmt.Errorf("%w: %w", ErrDisconnected, err)
	}
	var msg rpcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return rpcMessage{}, errMalformed
	}
	return msg, nil
}

// bind makes blocking reads honour ctx: its deadline becomes the read
// deadline and cancellation unblocks the pending read.
func (s *Stream) bind(ctx context.Context) (stop func()) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(deadline)
	} else {
		_ = s.conn.SetReadDeadline(time.Time{})
	}
	unregister := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	return func() { unregister() }
}

// readErr prefers the context error when cancellation caused the failure.
func (s *Stream) readErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
