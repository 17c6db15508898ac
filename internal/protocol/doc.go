// Package protocol defines the signaling wire format spoken between browser
// clients and the signaling server.
//
// Every frame is a JSON envelope {"kind": ..., "payload": ...}. Call payloads
// (offer/answer) are carried as raw JSON and are never interpreted here; this
// package models the envelope and the routing fields only.
package protocol
