package peerclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

var (
	// ErrRenegotiation is returned for descriptions that would start a second
	// offer/answer round. A call carries exactly one of each.
	ErrRenegotiation  = errors.New("peerclient: renegotiation is not supported")
	ErrBadDescription = errors.New("peerclient: bad session description")
)

// Signal types emitted by browser peers that are not SDP descriptions.
var renegotiationTypes = map[string]bool{
	"renegotiate":        true,
	"transceiverRequest": true,
}

// EncodeDescription renders desc the way browser clients send it: the JSON
// description wrapped in a JSON string.
func EncodeDescription(desc webrtc.SessionDescription, want webrtc.SDPType) (json.RawMessage, error) {
	if desc.Type != want {
		if desc.Type == webrtc.SDPTypeRollback || desc.Type == webrtc.SDPTypePranswer {
			return nil, fmt.Errorf("%w: %s", ErrRenegotiation, desc.Type)
		}
		return nil, fmt.Errorf("%w: got %s, want %s", ErrBadDescription, desc.Type, want)
	}
	inner, err := json.Marshal(desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDescription, err)
	}
	return json.Marshal(string(inner))
}

// DecodeDescription accepts both the string-wrapped form and a bare JSON
// object.
func DecodeDescription(raw json.RawMessage) (webrtc.SessionDescription, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: empty", ErrBadDescription)
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return webrtc.SessionDescription{}, fmt.Errorf("%w: %v", ErrBadDescription, err)
		}
		raw = json.RawMessage(s)
	}

	var wire struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %v", ErrBadDescription, err)
	}
	if renegotiationTypes[wire.Type] {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %s", ErrRenegotiation, wire.Type)
	}
	typ := webrtc.NewSDPType(wire.Type)
	if typ == webrtc.SDPTypeUnknown || wire.SDP == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: type %q", ErrBadDescription, wire.Type)
	}
	return webrtc.SessionDescription{Type: typ, SDP: wire.SDP}, nil
}
