package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chargehub/internal/ocpp"
)

// MessageProcessor handles raw OCPP messages for one connection. The call
// registry completes pending outbound calls when a response frame arrives.
type MessageProcessor interface {
	Process(ctx context.Context, chargePointID string, calls *ocpp.CallRegistry, raw []byte) ([]byte, error)
}

// Connection represents an active charge point WebSocket connection. The
// read pump runs sequentially, so no two inbound calls from the same
// charge point are processed concurrently.
type Connection struct {
	chargePointID string
	ws            *websocket.Conn
	send          chan []byte
	calls         *ocpp.CallRegistry
	processor     MessageProcessor
	readTimeout   time.Duration
	writeTimeout  time.Duration
	logger        *zap.Logger
	onClose       func(chargePointID string)
	closeOnce     sync.Once

	// sendMu orders writes against Close so a frame enqueued while the
	// connection is tearing down fails instead of hitting a closed channel.
	sendMu sync.Mutex
	closed bool
}

// NewConnection builds connection wrapper with its own call registry.
func NewConnection(chargePointID string, ws *websocket.Conn, processor MessageProcessor, callTimeout, readTimeout, writeTimeout time.Duration, logger *zap.Logger, onClose func(string)) *Connection {
	if readTimeout <= 0 {
		readTimeout = 60 * time.Second
	}
	c := &Connection{
		chargePointID: chargePointID,
		ws:            ws,
		send:          make(chan []byte, 16),
		processor:     processor,
		readTimeout:   readTimeout,
		writeTimeout:  writeTimeout,
		logger:        logger,
		onClose:       onClose,
	}
	c.calls = ocpp.NewCallRegistry(c, callTimeout, logger)
	return c
}

// ChargePointID returns identifier.
func (c *Connection) ChargePointID() string {
	return c.chargePointID
}

// Calls exposes the pending-call registry for server-initiated actions.
func (c *Connection) Calls() *ocpp.CallRegistry {
	return c.calls
}

// WriteFrame enqueues an outbound frame; it fails when the connection is
// closed or the buffer is full rather than blocking the caller.
func (c *Connection) WriteFrame(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return errors.New("ws: connection closed")
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errors.New("ws: send buffer full")
	}
}

// Start launches the write pump and runs the read pump until the
// connection dies.
func (c *Connection) Start(ctx context.Context) {
	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *Connection) readPump(ctx context.Context) {
	defer c.Close()
	c.ws.SetReadLimit(1024 * 1024)
	c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Info("connection read closed", zap.String("charge_point_id", c.chargePointID), zap.Error(err))
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))

		response, err := c.processor.Process(ctx, c.chargePointID, c.calls, message)
		if err != nil {
			c.logger.Warn("failed to process message", zap.String("charge_point_id", c.chargePointID), zap.Error(err))
			continue
		}
		if response != nil {
			if err := c.WriteFrame(response); err != nil {
				c.logger.Warn("dropping response", zap.String("charge_point_id", c.chargePointID), zap.Error(err))
			}
		}
	}
}

func (c *Connection) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				_ = c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// Ping sends a ping control frame. WriteControl is safe to call
// concurrently with the write pump; WriteMessage is not.
func (c *Connection) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(c.writeTimeout))
}

func (c *Connection) write(messageType int, data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}

// Close tears the connection down exactly once, failing all pending calls,
// even when a read failure and an explicit close race. The send channel is
// closed under sendMu so no writer can be mid-enqueue.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.calls.Close()
		c.sendMu.Lock()
		c.closed = true
		close(c.send)
		c.sendMu.Unlock()
		_ = c.ws.Close()
		if c.onClose != nil {
			c.onClose(c.chargePointID)
		}
	})
}
