package domain

import "errors"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNotFound is wrapped by stores and configuration sources when a key or
// parameter does not exist.
var ErrNotFound = errors.New("not found")

// ChatMessage is the provider-agnostic chat message shape used by the
// orchestrator and the completion client.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
