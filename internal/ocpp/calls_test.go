package ocpp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeWriter struct {
	mu       sync.Mutex
	frames   [][]byte
	writeErr error
}

func (f *fakeWriter) WriteFrame(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	f.frames = append(f.frames, copied)
	return nil
}

func (f *fakeWriter) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeWriter) frameAt(t *testing.T, index int) *Frame {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if index < 0 || index >= len(f.frames) {
		t.Fatalf("no frame at index %d", index)
	}
	frame, err := ParseFrame(f.frames[index])
	if err != nil {
		t.Fatalf("parse written frame: %v", err)
	}
	return frame
}

func newTestRegistry(writer FrameWriter, timeout time.Duration) *CallRegistry {
	return NewCallRegistry(writer, timeout, zap.NewNop())
}

func TestSendReceivesResult(t *testing.T) {
	writer := &fakeWriter{}
	registry := newTestRegistry(writer, time.Second)

	done := make(chan error, 1)
	var payload json.RawMessage
	go func() {
		var err error
		payload, err = registry.Send(context.Background(), "Reset", map[string]string{"type": "Soft"})
		done <- err
	}()

	waitFor(t, 200*time.Millisecond, func() bool { return writer.frameCount() == 1 })
	call := writer.frameAt(t, 0)
	if call.Action != "Reset" {
		t.Fatalf("expected Reset call, got %s", call.Action)
	}

	if ok := registry.Resolve(&Frame{MessageType: 3, UniqueID: call.UniqueID, Payload: json.RawMessage(`{"status":"Accepted"}`)}); !ok {
		t.Fatalf("expected pending call to resolve")
	}

	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}
	if string(payload) != `{"status":"Accepted"}` {
		t.Fatalf("unexpected payload: %s", payload)
	}
}

func TestSendReceivesRemoteError(t *testing.T) {
	writer := &fakeWriter{}
	registry := newTestRegistry(writer, time.Second)

	done := make(chan error, 1)
	go func() {
		_, err := registry.Send(context.Background(), "Reset", nil)
		done <- err
	}()

	waitFor(t, 200*time.Millisecond, func() bool { return writer.frameCount() == 1 })
	call := writer.frameAt(t, 0)
	registry.Resolve(&Frame{MessageType: 4, UniqueID: call.UniqueID, ErrorCode: "NotSupported", ErrorDescription: "nope"})

	err := <-done
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remote.Code != "NotSupported" {
		t.Fatalf("expected NotSupported, got %s", remote.Code)
	}
}

func TestConcurrentCallsCompleteOutOfOrder(t *testing.T) {
	writer := &fakeWriter{}
	registry := newTestRegistry(writer, time.Second)

	type result struct {
		payload json.RawMessage
		err     error
	}
	first := make(chan result, 1)
	second := make(chan result, 1)
	go func() {
		p, err := registry.Send(context.Background(), "First", nil)
		first <- result{p, err}
	}()
	waitFor(t, 200*time.Millisecond, func() bool { return writer.frameCount() == 1 })
	go func() {
		p, err := registry.Send(context.Background(), "Second", nil)
		second <- result{p, err}
	}()
	waitFor(t, 200*time.Millisecond, func() bool { return writer.frameCount() == 2 })

	firstCall := writer.frameAt(t, 0)
	secondCall := writer.frameAt(t, 1)

	// Respond to the second call before the first.
	registry.Resolve(&Frame{MessageType: 3, UniqueID: secondCall.UniqueID, Payload: json.RawMessage(`"two"`)})
	registry.Resolve(&Frame{MessageType: 3, UniqueID: firstCall.UniqueID, Payload: json.RawMessage(`"one"`)})

	r1 := <-first
	r2 := <-second
	if r1.err != nil || r2.err != nil {
		t.Fatalf("unexpected errors: %v %v", r1.err, r2.err)
	}
	if string(r1.payload) != `"one"` || string(r2.payload) != `"two"` {
		t.Fatalf("responses matched to wrong callers: %s %s", r1.payload, r2.payload)
	}
}

func TestSendTimesOut(t *testing.T) {
	writer := &fakeWriter{}
	registry := newTestRegistry(writer, 20*time.Millisecond)

	_, err := registry.Send(context.Background(), "Reset", nil)
	if !errors.Is(err, ErrCallTimeout) {
		t.Fatalf("expected ErrCallTimeout, got %v", err)
	}

	// The pending entry is gone; a late response is an orphan.
	call := writer.frameAt(t, 0)
	if registry.Resolve(&Frame{MessageType: 3, UniqueID: call.UniqueID}) {
		t.Fatalf("expected late response to be orphaned")
	}
}

func TestCloseFailsPendingCalls(t *testing.T) {
	writer := &fakeWriter{}
	registry := newTestRegistry(writer, time.Second)

	done := make(chan error, 1)
	go func() {
		_, err := registry.Send(context.Background(), "Reset", nil)
		done <- err
	}()
	waitFor(t, 200*time.Millisecond, func() bool { return writer.frameCount() == 1 })

	// Close twice: a read failure and an explicit close may both trigger.
	registry.Close()
	registry.Close()

	if err := <-done; !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}

	if _, err := registry.Send(context.Background(), "Reset", nil); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected send after close to fail, got %v", err)
	}
}

func TestResolveOrphanReturnsFalse(t *testing.T) {
	registry := newTestRegistry(&fakeWriter{}, time.Second)
	if registry.Resolve(&Frame{MessageType: 3, UniqueID: "never-sent"}) {
		t.Fatalf("expected orphan resolve to return false")
	}
}

func TestSendWriteFailureRemovesPending(t *testing.T) {
	writer := &fakeWriter{writeErr: errors.New("boom")}
	registry := newTestRegistry(writer, time.Second)

	_, err := registry.Send(context.Background(), "Reset", nil)
	if err == nil || errors.Is(err, ErrCallTimeout) {
		t.Fatalf("expected write error, got %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
