package types

import (
	"time"

	"github.com/google/uuid"
)

// TokenType is the scheme clients use to present issued tokens.
const TokenType = "Bearer"

// AuthSession is returned by login and by the current-user lookup.
type AuthSession struct {
	Token     string    `json:"token"`
	Type      string    `json:"type"`
	UserID    uuid.UUID `json:"userId"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewAuthSession builds the session view of user for token.
func NewAuthSession(user User, token string, expiresAt time.Time) AuthSession {
	return AuthSession{
		Token:     token,
		Type:      TokenType,
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		ExpiresAt: expiresAt,
	}
}
