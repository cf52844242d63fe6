package domain

// Turn is a single persisted history entry. It is stored as a JSON array
// element under history:{client}:{character}.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatMessage converts a stored turn into a prompt message.
func (t Turn) ChatMessage() ChatMessage {
	return ChatMessage{Role: t.Role, Content: t.Content}
}

// Quota is the result of a usage check for one client on one day.
type Quota struct {
	Allowed bool
	Count   int
}
