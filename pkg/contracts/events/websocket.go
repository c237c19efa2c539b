// Package events contains the event contract for the verdict stream sent to
// the GUI shell over WebSocket.
package events

import (
	"time"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// MessageTypeVerdict carries a domain.LicenseStatus after each commit or
	// reauthorization, and once when a client connects.
	MessageTypeVerdict MessageType = "license:verdict"

	// Connection messages
	MessageTypeConnect MessageType = "connect"
	MessageTypeError   MessageType = "error"
)

// BaseMessage represents the base structure for all WebSocket messages
type BaseMessage struct {
	ID        string      `json:"id,omitempty"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// WebSocketMessage represents a complete WebSocket message
type WebSocketMessage struct {
	BaseMessage
	Data interface{} `json:"data,omitempty"`
}

// ConnectData is the payload of the greeting sent to a new client
type ConnectData struct {
	ClientID string `json:"client_id"`
	Message  string `json:"message"`
}

// NewMessage builds a message stamped with the current time
func NewMessage(id string, t MessageType, data interface{}) WebSocketMessage {
	return WebSocketMessage{
		BaseMessage: BaseMessage{
			ID:        id,
			Type:      t,
			Timestamp: time.Now().UTC(),
		},
		Data: data,
	}
}
