package ocpp

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FrameWriter writes one encoded frame to the underlying connection.
type FrameWriter interface {
	WriteFrame(data []byte) error
}

type callOutcome struct {
	payload json.RawMessage
	err     error
}

// CallRegistry tracks outbound calls on one connection and matches each to
// its eventual CALLRESULT/CALLERROR by unique id. Correlation runs on the
// id, not channel order: multiple in-flight calls may complete out of
// order.
type CallRegistry struct {
	writer  FrameWriter
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]chan callOutcome
	closed  bool

	closeOnce sync.Once
	newID     func() string
}

// NewCallRegistry builds a registry bound to one connection.
func NewCallRegistry(writer FrameWriter, timeout time.Duration, logger *zap.Logger) *CallRegistry {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CallRegistry{
		writer:  writer,
		timeout: timeout,
		logger:  logger,
		pending: make(map[string]chan callOutcome),
		newID:   uuid.NewString,
	}
}

// Send writes a CALL frame and suspends the caller until the matching
// response arrives, the timeout elapses, the context is done, or the
// connection closes.
func (r *CallRegistry) Send(ctx context.Context, action string, payload interface{}) (json.RawMessage, error) {
	id := r.newID()
	done := make(chan callOutcome, 1)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	r.pending[id] = done
	r.mu.Unlock()

	frame, err := BuildCall(id, action, payload)
	if err != nil {
		r.remove(id)
		return nil, err
	}
	if err := r.writer.WriteFrame(frame); err != nil {
		r.remove(id)
		return nil, err
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case outcome := <-done:
		return outcome.payload, outcome.err
	case <-timer.C:
		r.remove(id)
		r.logger.Warn("call timed out", zap.String("action", action), zap.String("unique_id", id))
		return nil, ErrCallTimeout
	case <-ctx.Done():
		r.remove(id)
		return nil, ctx.Err()
	}
}

// Resolve completes the pending call matching a CALLRESULT or CALLERROR
// frame. It reports false for orphaned responses, which are not fatal.
func (r *CallRegistry) Resolve(frame *Frame) bool {
	r.mu.Lock()
	done, ok := r.pending[frame.UniqueID]
	if ok {
		delete(r.pending, frame.UniqueID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	if frame.ErrorCode != "" {
		done <- callOutcome{err: &RemoteError{Code: frame.ErrorCode, Description: frame.ErrorDescription}}
	} else {
		done <- callOutcome{payload: frame.Payload}
	}
	return true
}

// Close fails every still-pending call with ErrConnectionClosed. Safe to
// trigger from both a read failure and an explicit close; it runs once.
func (r *CallRegistry) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		pending := r.pending
		r.pending = make(map[string]chan callOutcome)
		r.mu.Unlock()

		for id, done := range pending {
			done <- callOutcome{err: ErrConnectionClosed}
			r.logger.Debug("failed pending call on close", zap.String("unique_id", id))
		}
	})
}

func (r *CallRegistry) remove(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}
