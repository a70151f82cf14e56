// Package server defines the wire payload types and utility helpers that are
// reused across client and hub logic.
package server

import "strings"

// ChatMessage is one relayed chat message. The timestamp is assigned by the
// server at processing time and never trusted from the client.
type ChatMessage struct {
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
}

// inboundPayload is the client-to-server message shape. Pointer fields so an
// absent key can be told apart from a present-but-empty value.
type inboundPayload struct {
	Text   *string `json:"text"`
	Sender *string `json:"sender"`
}

// HistoryEnvelope is the server-to-client replay of recent messages sent to a
// client once, right after it joins, in buffer order.
type HistoryEnvelope struct {
	Type     string        `json:"type"`
	Messages []ChatMessage `json:"messages"`
}

// MessageEnvelope is the server-to-client wrapper for a single live message.
type MessageEnvelope struct {
	Type    string      `json:"type"`
	Message ChatMessage `json:"message"`
}

const (
	envelopeTypeHistory = "history"
	envelopeTypeMessage = "message"
)

// BroadcastMessage carries a validated, timestamped message from the client
// that received it into the hub's fan-out path.
type BroadcastMessage struct {
	Sender *Client
	Record ChatMessage
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
