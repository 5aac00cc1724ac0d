package store

import "time"

// SessionDocument is the metadata document of one chat session. Sessions are
// keyed by (user_id, id), so ids only need to be unique per user.
type SessionDocument struct {
	UserID    string    `gorm:"primaryKey;size:128"`
	ID        string    `gorm:"primaryKey;size:64"`
	Name      string    `gorm:"size:200;not null"`
	IsActive  bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;index"`
}

func (SessionDocument) TableName() string {
	return "chat_sessions"
}

// MessageDocument is one entry of a session's message log. Seq is assigned by
// the database and defines append order.
type MessageDocument struct {
	Seq       uint64 `gorm:"primaryKey;autoIncrement"`
	UserID    string `gorm:"size:128;not null;index:idx_messages_session"`
	SessionID string `gorm:"size:64;not null;index:idx_messages_session"`
	Type      string `gorm:"size:16;not null"`
	Content   string `gorm:"type:text;not null"`
	Timestamp string `gorm:"size:40;not null"`
}

func (MessageDocument) TableName() string {
	return "chat_messages"
}

// ProfileDocument is the user profile kept alongside the sessions.
type ProfileDocument struct {
	UserID      string    `gorm:"primaryKey;size:128"`
	Email       string    `gorm:"size:320"`
	DisplayName string    `gorm:"size:200"`
	Bio         string    `gorm:"type:text"`
	AvatarURL   string    `gorm:"size:1024"`
	Role        string    `gorm:"size:32;not null;default:'user'"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (ProfileDocument) TableName() string {
	return "user_profiles"
}
