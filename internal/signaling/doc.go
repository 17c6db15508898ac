// Package signaling is the WebSocket gateway in front of the hub.
//
// Each connection identifies itself with the name and id query parameters on
// the upgrade request. Connections that omit either are never registered.
// Accepted connections get one reader goroutine that decodes inbound frames
// and hands them to the hub in arrival order, and one writer goroutine that
// drains a bounded outbound queue.
package signaling
