// Package api defines the wire types shared by the Pharmabot API server,
// the Go client, and the CLI.
package api

import "time"

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single entry in a session transcript.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is the server-side record of one caller conversation.
type Session struct {
	ID           string         `json:"id"`
	Phone        string         `json:"phone"`
	PharmacyName string         `json:"pharmacyName,omitempty"`
	Mode         string         `json:"mode"`
	Turns        []Turn         `json:"turns"`
	Collected    map[string]any `json:"collected,omitempty"`
	Topics       []string       `json:"topics,omitempty"`
	EmailSent    bool           `json:"emailSent"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// StartSessionRequest opens a new session for an inbound caller.
type StartSessionRequest struct {
	Phone string `json:"phone"`
}

// MessageRequest carries one caller message into an existing session.
type MessageRequest struct {
	Text string `json:"text"`
}

// MessageReply is the agent's response to a caller message.
type MessageReply struct {
	Reply string `json:"reply"`
}
