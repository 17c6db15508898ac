package protocol

// Kind identifies a signaling event. The string values are the short wire
// codes used by the web client.
type Kind string

const (
	KindConnSuccess      Kind = "con_suc"
	KindUserConnected    Kind = "u_con"
	KindUserDisconnected Kind = "u_dis"

	KindMakeCall     Kind = "m_call"
	KindCallMade     Kind = "c_mad"
	KindAcceptCall   Kind = "a_call"
	KindCallAccepted Kind = "c_acc"
	KindCancelCall   Kind = "c_call"
	KindCallCanceled Kind = "c_can"
	KindRejectCall   Kind = "r_call"
	KindCallRejected Kind = "c_rej"
	KindBusy         Kind = "busy"

	KindBlockUser    Kind = "b_user"
	KindUnblockUser  Kind = "u_user"
	KindBlockedUsers Kind = "b_users"
)

var kindNames = map[Kind]string{
	KindConnSuccess:      "CONN_SUCCESS",
	KindUserConnected:    "USER_CONNECTED",
	KindUserDisconnected: "USER_DISCONNECTED",
	KindMakeCall:         "MAKE_CALL",
	KindCallMade:         "CALL_MADE",
	KindAcceptCall:       "ACCEPT_CALL",
	KindCallAccepted:     "CALL_ACCEPTED",
	KindCancelCall:       "CANCEL_CALL",
	KindCallCanceled:     "CALL_CANCELED",
	KindRejectCall:       "REJECT_CALL",
	KindCallRejected:     "CALL_REJECTED",
	KindBusy:             "BUSY",
	KindBlockUser:        "BLOCK_USER",
	KindUnblockUser:      "UNBLOCK_USER",
	KindBlockedUsers:     "BLOCKED_USERS",
}

// Name returns the descriptive event name (e.g. MAKE_CALL) used in logs and
// metric labels. Unknown kinds return "UNKNOWN".
func (k Kind) Name() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "UNKNOWN"
}

func (k Kind) String() string { return k.Name() }

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}
