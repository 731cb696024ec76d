package events

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Encode validates payload against t and wraps it in an Envelope.
func Encode(t Type, payload any) (Envelope, error) {
	if err := Validate(t, payload); err != nil {
		return Envelope{}, err
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	return newEnvelope(t, b), nil
}

// Decode unmarshals env.Data into the typed payload for env.Type.
func Decode(env Envelope) (any, error) {
	if !env.Type.IsValid() {
		return nil, ErrInvalidType
	}
	if len(env.Data) == 0 {
		return nil, ErrInvalidPayload
	}

	var (
		out any
		err error
	)

	switch env.Type {
	case TypeUserRegistered:
		var p UserRegistered
		err = json.Unmarshal(env.Data, &p)
		out = p
	case TypeUserUpdated:
		var p UserUpdated
		err = json.Unmarshal(env.Data, &p)
		out = p
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if err := Validate(env.Type, out); err != nil {
		return nil, err
	}

	return out, nil
}

// Validate performs minimal validation on a payload.
func Validate(t Type, payload any) error {
	if !t.IsValid() {
		return ErrInvalidType
	}

	blank := func(s string) bool { return strings.TrimSpace(s) == "" }

	switch t {
	case TypeUserRegistered:
		var p UserRegistered
		switch v := payload.(type) {
		case UserRegistered:
			p = v
		case *UserRegistered:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if blank(p.UserID) || blank(p.Username) {
			return ErrInvalidPayload
		}

	case TypeUserUpdated:
		var p UserUpdated
		switch v := payload.(type) {
		case UserUpdated:
			p = v
		case *UserUpdated:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if blank(p.UserID) || len(p.Fields) == 0 {
			return ErrInvalidPayload
		}
	}

	return nil
}
