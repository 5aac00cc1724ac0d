package chat

import (
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/skynetai/skynet/backend/internal/apperr"
)

// Role is the closed set of message authors.
type Role string

const (
	RoleSystem Role = "system"
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
)

// ParseRole validates a stored role tag.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleSystem, RoleHuman, RoleAI:
		return Role(raw), nil
	default:
		return "", apperr.New(apperr.ErrDataCorruption, "unknown message role %q", raw)
	}
}

// Message is one immutable entry of a session history.
type Message struct {
	Role      Role   `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// NewMessage stamps a message with the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// ToSchema converts the message into the LLM message representation.
func (m Message) ToSchema() (*schema.Message, error) {
	switch m.Role {
	case RoleSystem:
		return schema.SystemMessage(m.Content), nil
	case RoleHuman:
		return schema.UserMessage(m.Content), nil
	case RoleAI:
		return schema.AssistantMessage(m.Content, nil), nil
	default:
		return nil, apperr.New(apperr.ErrDataCorruption, "unknown message role %q", m.Role)
	}
}
