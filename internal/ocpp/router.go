package ocpp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"chargehub/internal/ocpp/protocol"
)

// HandlerFunc processes a call payload and returns the response body.
type HandlerFunc func(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error)

// Router dispatches OCPP actions to handlers.
type Router struct {
	handlers map[string]HandlerFunc
}

// NewRouter returns router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Register attaches handler to action.
func (r *Router) Register(action string, handler HandlerFunc) {
	r.handlers[action] = handler
}

// Validate checks at startup that the registered set covers exactly the
// supported actions, no more and no fewer.
func (r *Router) Validate(actions []string) error {
	want := make(map[string]bool, len(actions))
	for _, action := range actions {
		want[action] = true
		if _, ok := r.handlers[action]; !ok {
			return fmt.Errorf("ocpp: no handler registered for %s", action)
		}
	}
	var extra []string
	for action := range r.handlers {
		if !want[action] {
			extra = append(extra, action)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return fmt.Errorf("ocpp: unexpected handlers registered: %v", extra)
	}
	return nil
}

// Route executes the handler for a call frame.
func (r *Router) Route(ctx context.Context, chargePointID string, frame *Frame) (interface{}, error) {
	handler, ok := r.handlers[frame.Action]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported action %s", errNotImplemented, frame.Action)
	}
	return handler(ctx, chargePointID, frame.Payload)
}

var errNotImplemented = errors.New("ocpp: not implemented")

// Processor ties together frame parsing, routing, response encoding, and
// response correlation for one connection's inbound traffic.
type Processor struct {
	router *Router
	logger *zap.Logger
}

// NewProcessor builds Processor.
func NewProcessor(router *Router, logger *zap.Logger) *Processor {
	return &Processor{router: router, logger: logger}
}

// Process handles one raw inbound message. Calls are routed and answered;
// results and errors complete pending outbound calls via the registry.
// The returned bytes, when non-nil, are written back on the connection.
func (p *Processor) Process(ctx context.Context, chargePointID string, calls *CallRegistry, raw []byte) ([]byte, error) {
	frame, err := ParseFrame(raw)
	if err != nil {
		if id := RecoverUniqueID(raw); id != "" {
			p.logger.Warn("malformed frame",
				zap.String("charge_point_id", chargePointID),
				zap.String("unique_id", id),
				zap.Error(err))
			return BuildCallError(id, protocol.ErrorCodeProtocolError, err.Error())
		}
		return nil, err
	}

	switch frame.MessageType {
	case protocol.MessageTypeCall:
		return p.processCall(ctx, chargePointID, frame)
	case protocol.MessageTypeCallResult, protocol.MessageTypeCallError:
		if calls == nil || !calls.Resolve(frame) {
			p.logger.Warn("orphaned response dropped",
				zap.String("charge_point_id", chargePointID),
				zap.String("unique_id", frame.UniqueID))
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("ocpp: unsupported message type %d", frame.MessageType)
	}
}

func (p *Processor) processCall(ctx context.Context, chargePointID string, frame *Frame) ([]byte, error) {
	responsePayload, err := p.router.Route(ctx, chargePointID, frame)
	if err != nil {
		p.logger.Warn("ocpp handler failed",
			zap.String("charge_point_id", chargePointID),
			zap.String("action", frame.Action),
			zap.Error(err))
		switch {
		case errors.Is(err, errNotImplemented):
			return BuildCallError(frame.UniqueID, protocol.ErrorCodeNotImplemented, err.Error())
		case errors.Is(err, ErrProtocolViolation):
			return BuildCallError(frame.UniqueID, protocol.ErrorCodeProtocolError, err.Error())
		default:
			return BuildCallError(frame.UniqueID, protocol.ErrorCodeInternalError, err.Error())
		}
	}

	respBytes, err := BuildCallResult(frame.UniqueID, responsePayload)
	if err != nil {
		p.logger.Error("encode ocpp response failed", zap.Error(err))
		return nil, err
	}
	return respBytes, nil
}

// Decode convenience helper for handlers.
func Decode[T any](payload json.RawMessage) (T, error) {
	var target T
	if err := json.Unmarshal(payload, &target); err != nil {
		var zero T
		return zero, err
	}
	return target, nil
}
