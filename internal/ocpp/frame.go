package ocpp

import (
	"encoding/json"
	"errors"
	"fmt"

	"chargehub/internal/ocpp/protocol"
)

// Frame is one parsed OCPP-J envelope of any of the three kinds.
type Frame struct {
	MessageType int
	UniqueID    string
	Action      string
	Payload     json.RawMessage

	// CallError fields, set only for MessageTypeCallError.
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// ParseFrame decodes a raw JSON array into a Frame.
func ParseFrame(data []byte) (*Frame, error) {
	var array []json.RawMessage
	if err := json.Unmarshal(data, &array); err != nil {
		return nil, fmt.Errorf("ocpp: decode frame: %w", err)
	}

	if len(array) < 3 {
		return nil, errors.New("ocpp: malformed frame")
	}

	var msgType int
	if err := json.Unmarshal(array[0], &msgType); err != nil {
		return nil, fmt.Errorf("ocpp: read message type: %w", err)
	}

	frame := &Frame{MessageType: msgType}
	if err := json.Unmarshal(array[1], &frame.UniqueID); err != nil {
		return nil, fmt.Errorf("ocpp: read unique id: %w", err)
	}

	switch msgType {
	case protocol.MessageTypeCall:
		if len(array) < 4 {
			return nil, errors.New("ocpp: incomplete CALL frame")
		}
		if err := json.Unmarshal(array[2], &frame.Action); err != nil {
			return nil, fmt.Errorf("ocpp: read action: %w", err)
		}
		frame.Payload = array[3]
	case protocol.MessageTypeCallResult:
		frame.Payload = array[2]
	case protocol.MessageTypeCallError:
		if len(array) < 4 {
			return nil, errors.New("ocpp: incomplete CALLERROR frame")
		}
		if err := json.Unmarshal(array[2], &frame.ErrorCode); err != nil {
			return nil, fmt.Errorf("ocpp: read error code: %w", err)
		}
		if err := json.Unmarshal(array[3], &frame.ErrorDescription); err != nil {
			return nil, fmt.Errorf("ocpp: read error description: %w", err)
		}
		if len(array) > 4 {
			frame.ErrorDetails = array[4]
		}
	default:
		return nil, fmt.Errorf("ocpp: unsupported message type %d", msgType)
	}

	return frame, nil
}

// RecoverUniqueID best-effort extracts the unique id from a frame that
// failed to parse, so malformed calls can still be answered in-protocol.
func RecoverUniqueID(data []byte) string {
	var array []json.RawMessage
	if err := json.Unmarshal(data, &array); err != nil || len(array) < 2 {
		return ""
	}
	var id string
	if err := json.Unmarshal(array[1], &id); err != nil {
		return ""
	}
	return id
}

// BuildCall encodes a CALL frame.
func BuildCall(uniqueID, action string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	frame := []interface{}{protocol.MessageTypeCall, uniqueID, action, json.RawMessage(body)}
	return json.Marshal(frame)
}

// BuildCallResult encodes a CALLRESULT frame.
func BuildCallResult(uniqueID string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	frame := []interface{}{protocol.MessageTypeCallResult, uniqueID, json.RawMessage(body)}
	return json.Marshal(frame)
}

// BuildCallError encodes a CALLERROR frame.
func BuildCallError(uniqueID, code, description string) ([]byte, error) {
	frame := []interface{}{protocol.MessageTypeCallError, uniqueID, code, description, map[string]string{}}
	return json.Marshal(frame)
}
