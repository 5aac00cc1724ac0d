package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/skynetai/skynet/backend/internal/apperr"
	"github.com/skynetai/skynet/backend/internal/model/chat"
)

// CreateSession writes a session document. Creating an id that already
// exists for the user leaves the stored document untouched and reports
// created=false.
func (s *Store) CreateSession(ctx context.Context, userID, sessionID, name string) (chat.Session, bool, error) {
	now := s.now()
	doc := SessionDocument{
		UserID:    userID,
		ID:        sessionID,
		Name:      name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&doc)
	if res.Error != nil {
		return chat.Session{}, false, transient(res.Error, "create session")
	}
	if res.RowsAffected == 1 {
		return toSession(doc), true, nil
	}

	existing, err := s.GetSession(ctx, userID, sessionID)
	if err != nil {
		return chat.Session{}, false, err
	}
	return existing, false, nil
}

// GetSession loads one session document without its messages.
func (s *Store) GetSession(ctx context.Context, userID, sessionID string) (chat.Session, error) {
	var doc SessionDocument
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, sessionID).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return chat.Session{}, apperr.New(apperr.ErrSessionNotFound, "%s", sessionID)
	}
	if err != nil {
		return chat.Session{}, transient(err, "get session")
	}
	return toSession(doc), nil
}

// SessionExists reports whether the session document is present.
func (s *Store) SessionExists(ctx context.Context, userID, sessionID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&SessionDocument{}).
		Where("user_id = ? AND id = ?", userID, sessionID).
		Count(&count).Error
	if err != nil {
		return false, transient(err, "check session")
	}
	return count > 0, nil
}

// ListSessions returns every session of the user with its messages, most
// recently updated first.
func (s *Store) ListSessions(ctx context.Context, userID string) ([]chat.Session, error) {
	var docs []SessionDocument
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, transient(err, "list sessions")
	}

	sessions := make([]chat.Session, 0, len(docs))
	for _, doc := range docs {
		session := toSession(doc)
		msgs, err := s.ReadMessages(ctx, userID, doc.ID)
		if err != nil {
			return nil, err
		}
		session.Messages = msgs
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// DeleteSession removes the session document and its messages.
func (s *Store) DeleteSession(ctx context.Context, userID, sessionID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND session_id = ?", userID, sessionID).Delete(&MessageDocument{}).Error; err != nil {
			return err
		}
		res := tx.Where("user_id = ? AND id = ?", userID, sessionID).Delete(&SessionDocument{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.ErrSessionNotFound, "%s", sessionID)
		}
		return nil
	})
	if err != nil && !errors.Is(err, apperr.ErrSessionNotFound) {
		return transient(err, "delete session")
	}
	return err
}

func toSession(doc SessionDocument) chat.Session {
	return chat.Session{
		ID:        doc.ID,
		UserID:    doc.UserID,
		Name:      doc.Name,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
		IsActive:  doc.IsActive,
		Messages:  []chat.Message{},
	}
}

func (s *Store) touch(tx *gorm.DB, userID, sessionID string, at time.Time) (int64, error) {
	res := tx.Model(&SessionDocument{}).
		Where("user_id = ? AND id = ?", userID, sessionID).
		UpdateColumn("updated_at", at)
	return res.RowsAffected, res.Error
}
