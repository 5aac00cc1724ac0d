package user

import "context"

// DefaultRole is granted to accounts without an explicit role claim.
const DefaultRole = "user"

// User is the identity attached to an authenticated request.
type User struct {
	ID    string `json:"uid"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Profile is the per-user document kept next to the chat sessions.
type Profile struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Role        string `json:"role"`
	CreatedAt   string `json:"createdAt"`
}

// ProfileUpdate carries the user-editable profile fields. Role is not among them.
type ProfileUpdate struct {
	DisplayName *string `json:"display_name,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

type ctxKey struct{}

// WithUser attaches u to ctx.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext returns the authenticated user, if any.
func FromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*User)
	return u, ok && u != nil
}
