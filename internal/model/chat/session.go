package chat

import "time"

// Session captures one conversation owned by a user.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IsActive  bool      `json:"is_active"`
	Messages  []Message `json:"messages"`
}

// DefaultSessionName names sessions created without an explicit name.
func DefaultSessionName(now time.Time) string {
	return "Chat " + now.Format(time.RFC3339)
}
