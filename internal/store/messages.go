package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/skynetai/skynet/backend/internal/apperr"
	"github.com/skynetai/skynet/backend/internal/model/chat"
)

// AppendMessages adds msgs to the end of the session log and bumps
// updated_at in one transaction. Each message is its own row, so concurrent
// appends to the same session never overwrite each other.
func (s *Store) AppendMessages(ctx context.Context, userID, sessionID string, msgs ...chat.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	docs := make([]MessageDocument, 0, len(msgs))
	for _, msg := range msgs {
		if _, err := chat.ParseRole(string(msg.Role)); err != nil {
			return err
		}
		docs = append(docs, MessageDocument{
			UserID:    userID,
			SessionID: sessionID,
			Type:      string(msg.Role),
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		touched, err := s.touch(tx, userID, sessionID, s.now())
		if err != nil {
			return err
		}
		if touched == 0 {
			return apperr.New(apperr.ErrSessionNotFound, "%s", sessionID)
		}
		return tx.Create(&docs).Error
	})
	if err != nil && !errors.Is(err, apperr.ErrSessionNotFound) {
		return transient(err, "append messages")
	}
	return err
}

// ReadMessages returns the session log in append order. A missing session
// reads as an empty log. A row with an unknown role fails the whole read.
func (s *Store) ReadMessages(ctx context.Context, userID, sessionID string) ([]chat.Message, error) {
	var docs []MessageDocument
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("seq ASC").
		Find(&docs).Error
	if err != nil {
		return nil, transient(err, "read messages")
	}

	msgs := make([]chat.Message, 0, len(docs))
	for _, doc := range docs {
		role, err := chat.ParseRole(doc.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "session %s message %d", sessionID, doc.Seq)
		}
		msgs = append(msgs, chat.Message{Role: role, Content: doc.Content, Timestamp: doc.Timestamp})
	}
	return msgs, nil
}

// ClearMessages empties the session log and bumps updated_at.
func (s *Store) ClearMessages(ctx context.Context, userID, sessionID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		touched, err := s.touch(tx, userID, sessionID, s.now())
		if err != nil {
			return err
		}
		if touched == 0 {
			return apperr.New(apperr.ErrSessionNotFound, "%s", sessionID)
		}
		return tx.Where("user_id = ? AND session_id = ?", userID, sessionID).Delete(&MessageDocument{}).Error
	})
	if err != nil && !errors.Is(err, apperr.ErrSessionNotFound) {
		return transient(err, "clear messages")
	}
	return err
}
