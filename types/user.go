package types

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account in the system.
// It contains identity, profile, and audit metadata.
type User struct {
	// ID is the immutable identifier of the user.
	ID uuid.UUID `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's email address. It is also accepted as a login name.
	Email string `json:"email" db:"email"`

	FirstName string `json:"firstName" db:"first_name"`
	LastName  string `json:"lastName" db:"last_name"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Active is false for deactivated accounts, which cannot log in.
	Active bool `json:"active" db:"active"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
