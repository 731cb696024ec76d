package events

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// UserStream is the Redis stream carrying user lifecycle events.
const UserStream = "user.events"

type Type string

const (
	TypeUserRegistered Type = "user.registered"
	TypeUserUpdated    Type = "user.updated"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeUserRegistered, TypeUserUpdated:
		return true
	default:
		return false
	}
}

var (
	ErrInvalidType         = errors.New("invalid event type")
	ErrInvalidPayload      = errors.New("invalid event payload")
	ErrPayloadTypeMismatch = errors.New("payload type mismatch for event type")
)

// Envelope is what travels on the stream.
type Envelope struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

type UserRegistered struct {
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	FirstNames string `json:"firstNames"`
}

// UserUpdated lists the names of the changed fields, never their values.
type UserUpdated struct {
	UserID   string   `json:"userId"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Fields   []string `json:"fields"`
	ByAdmin  bool     `json:"byAdmin"`
}

func newEnvelope(t Type, data []byte) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}
