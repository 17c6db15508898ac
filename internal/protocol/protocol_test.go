package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseClientMessage_MakeCallKeepsOfferOpaque(t *testing.T) {
	frame := []byte(`{"kind":"m_call","payload":{"to":"bob","offer":"{\"type\":\"offer\",\"sdp\":\"v=0\"}"}}`)
	msg, err := ParseClientMessage(frame)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	mc, ok := msg.(MakeCall)
	if !ok {
		t.Fatalf("msg=%T, want MakeCall", msg)
	}
	if mc.To != "bob" {
		t.Fatalf("to=%q, want bob", mc.To)
	}
	if string(mc.Offer) != `"{\"type\":\"offer\",\"sdp\":\"v=0\"}"` {
		t.Fatalf("offer was altered: %s", mc.Offer)
	}
}

func TestParseClientMessage_ToleratesUnknownPayloadFields(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"kind":"r_call","payload":{"to":"a","reason":"hangup"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := msg.(RejectCall); !ok {
		t.Fatalf("msg=%T, want RejectCall", msg)
	}
}

func TestParseClientMessage_BlockedUsersNeedsNoPayload(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"kind":"b_users"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Kind() != KindBlockedUsers {
		t.Fatalf("kind=%v, want BLOCKED_USERS", msg.Kind())
	}
}

func TestParseClientMessage_Errors(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  error
	}{
		{"not json", `nope`, ErrMalformed},
		{"missing kind", `{"payload":{}}`, ErrMalformed},
		{"unknown kind", `{"kind":"teleport","payload":{}}`, ErrUnknownKind},
		{"server kind", `{"kind":"c_mad","payload":{}}`, ErrWrongSide},
		{"missing to", `{"kind":"m_call","payload":{"offer":"x"}}`, ErrMalformed},
		{"missing payload", `{"kind":"c_call"}`, ErrMalformed},
		{"empty id", `{"kind":"b_user","payload":{"id":""}}`, ErrMalformed},
		{"oversized to", `{"kind":"busy","payload":{"to":"` + strings.Repeat("x", 300) + `"}}`, ErrMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseClientMessage([]byte(tc.frame))
			if !errors.Is(err, tc.want) {
				t.Fatalf("err=%v, want %v", err, tc.want)
			}
		})
	}
}

func TestEncode_CallMadeShape(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	frame, err := Encode(KindCallMade, CallMade{
		Offer: json.RawMessage(`"opaque"`),
		User:  PublicUser{ID: "alice", Name: "Alice", ConnectedAt: at},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var generic map[string]any
	if err := json.Unmarshal(frame, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if generic["kind"] != "c_mad" {
		t.Fatalf("kind=%v, want c_mad", generic["kind"])
	}
	payload := generic["payload"].(map[string]any)
	user := payload["user"].(map[string]any)
	if len(user) != 3 {
		t.Fatalf("user has unexpected fields: %v", user)
	}
	if user["connectedAt"] != "2024-05-01T12:00:00Z" {
		t.Fatalf("connectedAt=%v", user["connectedAt"])
	}

	ev, err := ParseServerEvent(frame)
	if err != nil {
		t.Fatalf("parse server event: %v", err)
	}
	if ev.User.ID != "alice" || string(ev.Offer) != `"opaque"` {
		t.Fatalf("event=%+v", ev)
	}
}

func TestParseServerEvent_RejectsClientKinds(t *testing.T) {
	_, err := ParseServerEvent([]byte(`{"kind":"m_call","payload":{"to":"x"}}`))
	if !errors.Is(err, ErrWrongSide) {
		t.Fatalf("err=%v, want ErrWrongSide", err)
	}
}

func TestKindName(t *testing.T) {
	if KindCallCanceled.Name() != "CALL_CANCELED" {
		t.Fatalf("name=%q", KindCallCanceled.Name())
	}
	if Kind("zz").Name() != "UNKNOWN" {
		t.Fatalf("unknown kind should be named UNKNOWN")
	}
}
