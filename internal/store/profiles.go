package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/skynetai/skynet/backend/internal/apperr"
	"github.com/skynetai/skynet/backend/internal/model/user"
)

// ErrProfileNotFound is returned when a user has no profile document.
var ErrProfileNotFound = apperr.New(apperr.ErrNotFound, "user profile")

// CreateProfile stores the profile of a newly registered user. An existing
// profile is left as is.
func (s *Store) CreateProfile(ctx context.Context, userID, email, displayName string) error {
	doc := ProfileDocument{
		UserID:      userID,
		Email:       email,
		DisplayName: displayName,
		Role:        user.DefaultRole,
		CreatedAt:   s.now(),
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&doc).Error; err != nil {
		return transient(err, "create profile")
	}
	return nil
}

// GetProfile loads the profile document of userID.
func (s *Store) GetProfile(ctx context.Context, userID string) (user.Profile, error) {
	var doc ProfileDocument
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return user.Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return user.Profile{}, transient(err, "get profile")
	}
	return toProfile(doc), nil
}

// UpdateProfile applies the editable fields of upd. Role is never written.
func (s *Store) UpdateProfile(ctx context.Context, userID string, upd user.ProfileUpdate) (user.Profile, error) {
	updates := map[string]interface{}{}
	if upd.DisplayName != nil {
		updates["display_name"] = *upd.DisplayName
	}
	if upd.Bio != nil {
		updates["bio"] = *upd.Bio
	}
	if upd.AvatarURL != nil {
		updates["avatar_url"] = *upd.AvatarURL
	}
	if len(updates) == 0 {
		return user.Profile{}, apperr.New(apperr.ErrBadRequest, "no profile fields to update")
	}

	if _, err := s.GetProfile(ctx, userID); err != nil {
		return user.Profile{}, err
	}
	if err := s.db.WithContext(ctx).Model(&ProfileDocument{}).Where("user_id = ?", userID).Updates(updates).Error; err != nil {
		return user.Profile{}, transient(err, "update profile")
	}
	return s.GetProfile(ctx, userID)
}

func toProfile(doc ProfileDocument) user.Profile {
	return user.Profile{
		UserID:      doc.UserID,
		Email:       doc.Email,
		DisplayName: doc.DisplayName,
		Bio:         doc.Bio,
		AvatarURL:   doc.AvatarURL,
		Role:        doc.Role,
		CreatedAt:   doc.CreatedAt.Format(time.RFC3339),
	}
}
