package domain

import "time"

// ChatRequest is the inbound body accepted by POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatReply is the normalized success payload returned to the client.
type ChatReply struct {
	Reply     string `json:"reply"`
	Timestamp string `json:"timestamp"`
}

// ErrorBody describes a single failure in the ErrorResponse envelope.
type ErrorBody struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Details *string `json:"details"`
}

// ErrorResponse is the only failure shape the service ever returns.
type ErrorResponse struct {
	Error     ErrorBody `json:"error"`
	Timestamp string    `json:"timestamp"`
}

// Timestamp formats t the way every response envelope carries it.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
