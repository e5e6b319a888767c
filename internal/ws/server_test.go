package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chargehub/internal/handlers"
	"chargehub/internal/meter"
	"chargehub/internal/ocpp"
	"chargehub/internal/ocpp/protocol"
	"chargehub/internal/service"
	"chargehub/internal/testutil"
)

func newTestStack(t *testing.T, pingInterval time.Duration) (*httptest.Server, *Manager) {
	t.Helper()
	logger := zap.NewNop()
	store := testutil.NewMemStore()
	svc := service.NewChargeService(store, meter.NewIngestor(store, logger), nil, logger)

	router := ocpp.NewRouter()
	router.Register(protocol.ActionBootNotification, handlers.NewBootNotificationHandler(30*time.Second, logger))
	router.Register(protocol.ActionStartTransaction, handlers.NewStartTransactionHandler(svc, logger))
	router.Register(protocol.ActionMeterValues, handlers.NewMeterValuesHandler(svc, logger))
	router.Register(protocol.ActionStopTransaction, handlers.NewStopTransactionHandler(svc, logger))
	processor := ocpp.NewProcessor(router, logger)

	manager := NewManager(pingInterval)
	wsServer := NewServer(manager, processor, 5*time.Second, 5*time.Second, logger)

	mux := http.NewServeMux()
	mux.HandleFunc(PathPrefix, wsServer.HandleWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, manager
}

func dial(t *testing.T, server *httptest.Server, chargePointID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + PathPrefix + chargePointID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, uniqueID, action string, payload interface{}) []json.RawMessage {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	frame, err := json.Marshal([]interface{}{protocol.MessageTypeCall, uniqueID, action, json.RawMessage(body)})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		t.Fatalf("unmarshal response %s: %v", data, err)
	}
	return elements
}

func messageType(t *testing.T, elements []json.RawMessage) int {
	t.Helper()
	var mt int
	if err := json.Unmarshal(elements[0], &mt); err != nil {
		t.Fatalf("message type: %v", err)
	}
	return mt
}

func TestBootNotificationOverWebSocket(t *testing.T) {
	server, manager := newTestStack(t, time.Minute)
	conn := dial(t, server, "CP001")

	elements := roundTrip(t, conn, "boot-1", protocol.ActionBootNotification, map[string]string{
		"chargePointVendor": "VendorX",
		"chargePointModel":  "ModelY",
	})
	if mt := messageType(t, elements); mt != protocol.MessageTypeCallResult {
		t.Fatalf("expected CallResult, got type %d: %v", mt, elements)
	}

	var payload protocol.BootNotificationResponse
	if err := json.Unmarshal(elements[2], &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Status != protocol.RegistrationAccepted {
		t.Fatalf("expected Accepted, got %q", payload.Status)
	}
	if payload.Interval != 30 {
		t.Fatalf("expected interval 30, got %d", payload.Interval)
	}

	// Connection is registered under its path identity.
	if _, ok := manager.Get("CP001"); !ok {
		t.Fatal("connection not registered with manager")
	}
}

func TestStartStopTransactionOverWebSocket(t *testing.T) {
	server, _ := newTestStack(t, time.Minute)
	conn := dial(t, server, "CP001")

	elements := roundTrip(t, conn, "start-1", protocol.ActionStartTransaction, map[string]interface{}{
		"connectorId": 1,
		"idTag":       "EV001",
		"meterStart":  100.0,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"soc":         30,
	})
	if mt := messageType(t, elements); mt != protocol.MessageTypeCallResult {
		t.Fatalf("expected CallResult, got %v", elements)
	}
	var started protocol.StartTransactionResponse
	if err := json.Unmarshal(elements[2], &started); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if started.TransactionID == 0 {
		t.Fatal("expected a transaction id")
	}

	elements = roundTrip(t, conn, "stop-1", protocol.ActionStopTransaction, map[string]interface{}{
		"transactionId": started.TransactionID,
		"meterStop":     150.0,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
	if mt := messageType(t, elements); mt != protocol.MessageTypeCallResult {
		t.Fatalf("expected CallResult, got %v", elements)
	}
}

func TestUnknownActionGetsCallError(t *testing.T) {
	server, _ := newTestStack(t, time.Minute)
	conn := dial(t, server, "CP001")

	elements := roundTrip(t, conn, "x-1", "Reset", map[string]string{})
	if mt := messageType(t, elements); mt != protocol.MessageTypeCallError {
		t.Fatalf("expected CallError, got %v", elements)
	}
	var code string
	if err := json.Unmarshal(elements[2], &code); err != nil {
		t.Fatalf("error code: %v", err)
	}
	if code != protocol.ErrorCodeNotImplemented {
		t.Fatalf("expected NotImplemented, got %q", code)
	}
}

func waitCond(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func liveConnection(t *testing.T, manager *Manager, chargePointID string) *Connection {
	t.Helper()
	waitCond(t, 2*time.Second, func() bool {
		_, ok := manager.Get(chargePointID)
		return ok
	})
	conn, _ := manager.Get(chargePointID)
	return conn
}

func TestWriteFrameAfterCloseFails(t *testing.T) {
	server, manager := newTestStack(t, time.Minute)
	dial(t, server, "CP001")
	live := liveConnection(t, manager, "CP001")

	frame := []byte(`[2,"w1","Heartbeat",{}]`)

	// Writers racing the teardown must get an error, never a panic on the
	// closed send channel.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = live.WriteFrame(frame)
			}
		}()
	}
	live.Close()
	wg.Wait()

	if err := live.WriteFrame(frame); err == nil {
		t.Fatal("expected write after close to fail")
	}
}

func TestPingConcurrentWithResponses(t *testing.T) {
	server, manager := newTestStack(t, time.Minute)
	conn := dial(t, server, "CP001")
	live := liveConnection(t, manager, "CP001")

	pingsDone := make(chan struct{})
	go func() {
		defer close(pingsDone)
		for i := 0; i < 20; i++ {
			_ = live.Ping()
			time.Sleep(time.Millisecond)
		}
	}()

	// Data frames must stay intact while pings interleave.
	for i := 0; i < 5; i++ {
		elements := roundTrip(t, conn, fmt.Sprintf("boot-%d", i), protocol.ActionBootNotification, map[string]string{
			"chargePointVendor": "VendorX",
			"chargePointModel":  "ModelY",
		})
		if mt := messageType(t, elements); mt != protocol.MessageTypeCallResult {
			t.Fatalf("expected CallResult, got type %d: %v", mt, elements)
		}
	}
	<-pingsDone
}

func TestManagerShutdownClosesConnections(t *testing.T) {
	server, manager := newTestStack(t, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	managerDone := make(chan struct{})
	go func() {
		manager.Start(ctx)
		close(managerDone)
	}()

	conn := dial(t, server, "CP001")
	liveConnection(t, manager, "CP001")

	cancel()
	<-managerDone

	waitCond(t, 2*time.Second, func() bool {
		_, ok := manager.Get("CP001")
		return !ok
	})
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected client read to fail after shutdown")
	}
}

func TestIdleTimeoutFollowsPingInterval(t *testing.T) {
	// Read deadline is two ping intervals; with no pings sent and a silent
	// client the connection must drop on that schedule, not a fixed 60s.
	server, manager := newTestStack(t, 50*time.Millisecond)
	dial(t, server, "CP001")
	liveConnection(t, manager, "CP001")

	waitCond(t, 2*time.Second, func() bool {
		_, ok := manager.Get("CP001")
		return !ok
	})
}

func TestRejectsMissingChargePointID(t *testing.T) {
	server, _ := newTestStack(t, time.Minute)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + PathPrefix
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake to fail without an identity")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 handshake response, got %v", resp)
	}
}
