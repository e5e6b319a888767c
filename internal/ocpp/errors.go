package ocpp

import (
	"errors"
	"fmt"
)

// ErrCallTimeout fires when no response arrives within the call timeout.
var ErrCallTimeout = errors.New("ocpp: call timeout")

// ErrConnectionClosed fails pending calls when the connection goes away.
var ErrConnectionClosed = errors.New("ocpp: connection closed")

// ErrProtocolViolation marks handler failures caused by malformed or
// incomplete payloads; the processor answers them with a ProtocolError
// CallError instead of InternalError.
var ErrProtocolViolation = errors.New("ocpp: protocol violation")

// RemoteError is a CallError returned by the charge point for one of our
// outbound calls.
type RemoteError struct {
	Code        string
	Description string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("ocpp: remote error %s: %s", e.Code, e.Description)
}
