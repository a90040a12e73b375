package domain

import "time"

// Role identifies the author of a message.
type Role string

const (
	// RoleUser marks messages typed by the user.
	RoleUser Role = "user"
	// RoleAssistant marks replies produced by the backend.
	RoleAssistant Role = "assistant"
)

// WelcomeText seeds every freshly initialized conversation.
const WelcomeText = "Welcome to RecThink! I use recursive thinking to provide better responses. Ask me anything."

// Message is one entry of a session's append-only history.
type Message struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	ExchangeID string    `json:"exchange_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewWelcomeMessage returns the synthetic assistant greeting.
func NewWelcomeMessage() Message {
	return Message{Role: RoleAssistant, Content: WelcomeText, CreatedAt: time.Now()}
}
