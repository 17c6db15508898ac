package protocol

import (
	"encoding/json"
	"fmt"
)

// ServerEvent is a decoded server→client frame, flattened for consumers.
//
// Users is set for CONN_SUCCESS and BLOCKED_USERS; User is set for every
// other kind. Offer and Answer are only set for CALL_MADE and CALL_ACCEPTED.
type ServerEvent struct {
	Kind   Kind
	Users  []PublicUser
	User   PublicUser
	Offer  json.RawMessage
	Answer json.RawMessage
}

// ParseServerEvent decodes a server→client frame.
func ParseServerEvent(data []byte) (ServerEvent, error) {
	env, err := ParseEnvelope(data)
	if err != nil {
		return ServerEvent{}, err
	}

	ev := ServerEvent{Kind: env.Kind}
	switch env.Kind {
	case KindConnSuccess, KindBlockedUsers:
		err = unmarshalPayload(env.Payload, &ev.Users)
	case KindUserConnected, KindUserDisconnected, KindCallCanceled, KindBusy:
		err = unmarshalPayload(env.Payload, &ev.User)
	case KindCallMade:
		var p CallMade
		err = unmarshalPayload(env.Payload, &p)
		ev.User, ev.Offer = p.User, p.Offer
	case KindCallAccepted:
		var p CallAccepted
		err = unmarshalPayload(env.Payload, &p)
		ev.User, ev.Answer = p.User, p.Answer
	case KindCallRejected:
		var p CallRejected
		err = unmarshalPayload(env.Payload, &p)
		ev.User = p.User
	case KindMakeCall, KindAcceptCall, KindRejectCall, KindCancelCall, KindBlockUser, KindUnblockUser:
		return ServerEvent{}, fmt.Errorf("%w: %s", ErrWrongSide, env.Kind.Name())
	default:
		return ServerEvent{}, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	if err != nil {
		return ServerEvent{}, err
	}
	return ev, nil
}

func unmarshalPayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrMalformed)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
