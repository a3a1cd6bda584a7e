package services

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown login or a wrong
	// password. The two cases are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountInactive is returned when a deactivated user presents the
	// correct password.
	ErrAccountInactive = errors.New("account is deactivated")
	// ErrInvalidToken is returned when a bearer token cannot identify a user.
	ErrInvalidToken = errors.New("invalid token")
	// ErrValidation wraps caller input that cannot be accepted.
	ErrValidation = errors.New("validation failed")
)
