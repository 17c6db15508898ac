package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	ErrMalformed   = errors.New("protocol: malformed message")
	ErrUnknownKind = errors.New("protocol: unknown kind")
	ErrWrongSide   = errors.New("protocol: kind not valid in this direction")
)

var validate = validator.New()

// Encode marshals payload into a complete envelope. A nil payload is omitted.
func Encode(kind Kind, payload any) ([]byte, error) {
	env := Envelope{Kind: kind}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", kind.Name(), err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// ParseEnvelope decodes the outer frame only.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Kind == "" {
		return Envelope{}, fmt.Errorf("%w: missing kind", ErrMalformed)
	}
	if !env.Kind.Valid() {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	return env, nil
}

// ParseClientMessage decodes and validates a client→server frame.
//
// Unknown payload fields are tolerated so that clients can attach extra data
// without breaking older servers.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	env, err := ParseEnvelope(data)
	if err != nil {
		return nil, err
	}

	var msg ClientMessage
	switch env.Kind {
	case KindMakeCall:
		msg, err = decodePayload[MakeCall](env.Payload)
	case KindAcceptCall:
		msg, err = decodePayload[AcceptCall](env.Payload)
	case KindRejectCall:
		msg, err = decodePayload[RejectCall](env.Payload)
	case KindCancelCall:
		msg, err = decodePayload[CancelCall](env.Payload)
	case KindBusy:
		msg, err = decodePayload[Busy](env.Payload)
	case KindBlockUser:
		msg, err = decodePayload[BlockUser](env.Payload)
	case KindUnblockUser:
		msg, err = decodePayload[UnblockUser](env.Payload)
	case KindBlockedUsers:
		msg = ListBlocked{}
	case KindConnSuccess, KindUserConnected, KindUserDisconnected,
		KindCallMade, KindCallAccepted, KindCallRejected, KindCallCanceled:
		return nil, fmt.Errorf("%w: %s", ErrWrongSide, env.Kind.Name())
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func decodePayload[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(bytes.TrimSpace(raw)) == 0 {
		return v, fmt.Errorf("%w: missing payload", ErrMalformed)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}
