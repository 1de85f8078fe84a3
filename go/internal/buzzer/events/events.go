package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type is the name of a message exchanged over a buzzer connection
type Type string

// Client to server
const (
	TypeName Type = "name"
	TypeBuzz Type = "buzz"
	TypePong Type = "pong"
	TypeCode Type = "code"
	// TypeReset is also sent server to all after a moderator reset
	TypeReset Type = "reset"
)

// Server to client
const (
	TypeNameOK     Type = "name_ok"
	TypeNameError  Type = "name_error"
	TypePing       Type = "ping"
	TypeCodeOK     Type = "code_ok"
	TypeBuzzSingle Type = "buzz_single"
	TypeBuzzList   Type = "buzz_list"
	TypeUserCount  Type = "user_count"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrMissingPayload = errors.New("missing payload")
)

// Envelope is an inbound frame: {"type": ..., "data": ...}
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound frame
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// NewEvent creates an outbound event with a fresh ID, stamped at the given instant
func NewEvent(t Type, at time.Time, data any) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: at.UTC(),
		Data:      data,
	}
}

// Decode parses an inbound frame
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return &env, nil
}

// NamePayload decodes the data of a name frame
func (e *Envelope) NamePayload() (Identity, error) {
	var p Identity
	if err := e.decodeData(&p); err != nil {
		return Identity{}, err
	}
	return p, nil
}

// CodePayload decodes the data of a code frame
func (e *Envelope) CodePayload() (string, error) {
	var code string
	if err := e.decodeData(&code); err != nil {
		return "", err
	}
	return code, nil
}

func (e *Envelope) decodeData(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return fmt.Errorf("%s: %w", e.Type, ErrMissingPayload)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%s: %w: %v", e.Type, ErrMalformedFrame, err)
	}
	return nil
}
