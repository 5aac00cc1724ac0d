// Package history adapts the document store into the per-session message
// log consumed by the conversational pipeline.
package history

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/skynetai/skynet/backend/internal/model/chat"
)

// Store is the slice of the document store the adapter needs.
type Store interface {
	AppendMessages(ctx context.Context, userID, sessionID string, msgs ...chat.Message) error
	ReadMessages(ctx context.Context, userID, sessionID string) ([]chat.Message, error)
	ClearMessages(ctx context.Context, userID, sessionID string) error
}

// History is the ordered, append-only message log of one (user, session).
type History struct {
	store     Store
	userID    string
	sessionID string
}

// New binds a History to one session.
func New(store Store, userID, sessionID string) *History {
	return &History{store: store, userID: userID, sessionID: sessionID}
}

// UserID returns the owning user.
func (h *History) UserID() string { return h.userID }

// SessionID returns the bound session.
func (h *History) SessionID() string { return h.sessionID }

// Append adds msgs to the end of the log. Messages passed in one call land
// together or not at all.
func (h *History) Append(ctx context.Context, msgs ...chat.Message) error {
	return h.store.AppendMessages(ctx, h.userID, h.sessionID, msgs...)
}

// ReadAll returns the full log in append order.
func (h *History) ReadAll(ctx context.Context) ([]chat.Message, error) {
	return h.store.ReadMessages(ctx, h.userID, h.sessionID)
}

// Clear empties the log.
func (h *History) Clear(ctx context.Context) error {
	return h.store.ClearMessages(ctx, h.userID, h.sessionID)
}

// Prompt returns the log as model messages, keeping only the newest limit
// entries when limit > 0.
func (h *History) Prompt(ctx context.Context, limit int) ([]*schema.Message, error) {
	msgs, err := h.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	return ToSchema(msgs, limit)
}

// ToSchema converts history entries into model messages.
func ToSchema(msgs []chat.Message, limit int) ([]*schema.Message, error) {
	start := 0
	if limit > 0 && len(msgs) > limit {
		start = len(msgs) - limit
	}

	out := make([]*schema.Message, 0, len(msgs)-start)
	for _, msg := range msgs[start:] {
		converted, err := msg.ToSchema()
		if err != nil {
			return nil, err
		}
		out = append(out, converted)
	}
	return out, nil
}
