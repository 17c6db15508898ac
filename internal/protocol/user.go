package protocol

import "time"

// PublicUser is the only identity record that is ever serialized to clients.
//
// The transport session never appears here; it stays on the server.
type PublicUser struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ConnectedAt time.Time `json:"connectedAt"`
}
