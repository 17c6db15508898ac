package protocol

import "encoding/json"

// Envelope is the framing shared by every message in both directions.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ClientMessage is a decoded client→server message. The set of
// implementations is closed: only the types in this file satisfy it.
type ClientMessage interface {
	Kind() Kind
	clientMessage()
}

// MakeCall asks the server to forward an offer to another user.
type MakeCall struct {
	To    string          `json:"to" validate:"required,max=256"`
	Offer json.RawMessage `json:"offer"`
}

// AcceptCall forwards the callee's answer back to the caller.
type AcceptCall struct {
	To     string          `json:"to" validate:"required,max=256"`
	Answer json.RawMessage `json:"answer"`
}

// RejectCall declines a ringing call or ends an active one.
type RejectCall struct {
	To string `json:"to" validate:"required,max=256"`
}

// CancelCall withdraws an outgoing call before it is answered.
type CancelCall struct {
	To string `json:"to" validate:"required,max=256"`
}

// Busy auto-declines an incoming call.
type Busy struct {
	To string `json:"to" validate:"required,max=256"`
}

// BlockUser adds a live user to the sender's blocklist.
type BlockUser struct {
	ID string `json:"id" validate:"required,max=256"`
}

// UnblockUser removes a user from the sender's blocklist.
type UnblockUser struct {
	ID string `json:"id" validate:"required,max=256"`
}

// ListBlocked requests the sender's current blocklist.
type ListBlocked struct{}

func (MakeCall) Kind() Kind    { return KindMakeCall }
func (AcceptCall) Kind() Kind  { return KindAcceptCall }
func (RejectCall) Kind() Kind  { return KindRejectCall }
func (CancelCall) Kind() Kind  { return KindCancelCall }
func (Busy) Kind() Kind        { return KindBusy }
func (BlockUser) Kind() Kind   { return KindBlockUser }
func (UnblockUser) Kind() Kind { return KindUnblockUser }
func (ListBlocked) Kind() Kind { return KindBlockedUsers }

func (MakeCall) clientMessage()    {}
func (AcceptCall) clientMessage()  {}
func (RejectCall) clientMessage()  {}
func (CancelCall) clientMessage()  {}
func (Busy) clientMessage()        {}
func (BlockUser) clientMessage()   {}
func (UnblockUser) clientMessage() {}
func (ListBlocked) clientMessage() {}

// CallMade is delivered to the callee.
type CallMade struct {
	Offer json.RawMessage `json:"offer"`
	User  PublicUser      `json:"user"`
}

// CallAccepted is delivered to the caller.
type CallAccepted struct {
	Answer json.RawMessage `json:"answer"`
	User   PublicUser      `json:"user"`
}

// CallRejected is delivered to the other side of a declined or ended call.
type CallRejected struct {
	User PublicUser `json:"user"`
}
