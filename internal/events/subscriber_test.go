package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestDecodeMessage(t *testing.T) {
	env, err := Encode(TypeUserUpdated, UserUpdated{UserID: "u1", Fields: []string{"email"}})
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	got, err := decodeMessage(redis.XMessage{ID: "1-0", Values: map[string]interface{}{"event": string(raw)}})
	if err != nil {
		t.Fatalf("decodeMessage error: %v", err)
	}

	if got.ID != env.ID || got.Type != TypeUserUpdated {
		t.Fatalf("got %+v, want %+v", got, env)
	}
}

func TestDecodeMessage_MissingField(t *testing.T) {
	_, err := decodeMessage(redis.XMessage{ID: "1-0", Values: map[string]interface{}{"other": "x"}})

	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestDecodeMessage_UnknownType(t *testing.T) {
	_, err := decodeMessage(redis.XMessage{ID: "1-0", Values: map[string]interface{}{
		"event": `{"id":"e1","type":"user.deleted","data":{}}`,
	}})

	if !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}
