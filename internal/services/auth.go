package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/taskboard/apiserver/internal/auth"
	"github.com/taskboard/apiserver/internal/store"
	"github.com/taskboard/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// AuthService implements login and token introspection on top of the user
// repository and the token service.
type AuthService struct {
	users     UserRepository
	tokens    *auth.TokenService
	dummyHash []byte
}

func NewAuthService(users UserRepository, tokens *auth.TokenService) *AuthService {
	// Compared against when the login is unknown so both failure paths pay
	// for one bcrypt comparison.
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("generate dummy hash: %v", err))
	}
	return &AuthService{users: users, tokens: tokens, dummyHash: dummy}
}

// Login resolves usernameOrEmail by username first, then by email, checks the
// password and issues a token.
func (s *AuthService) Login(ctx context.Context, usernameOrEmail, password string) (types.AuthSession, error) {
	login := strings.TrimSpace(usernameOrEmail)
	if login == "" || password == "" {
		return types.AuthSession{}, ErrInvalidCredentials
	}

	user, err := s.lookup(ctx, login)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return types.AuthSession{}, ErrInvalidCredentials
		}
		return types.AuthSession{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return types.AuthSession{}, ErrInvalidCredentials
	}
	if !user.Active {
		return types.AuthSession{}, ErrAccountInactive
	}

	issued, err := s.tokens.Issue(user.Username, user.ID.String())
	if err != nil {
		return types.AuthSession{}, fmt.Errorf("issue token: %w", err)
	}
	return types.NewAuthSession(user, issued.Value, issued.ExpiresAt), nil
}

// CurrentUser returns the session described by token. Every decoding,
// validation or lookup failure is reported as ErrInvalidToken.
func (s *AuthService) CurrentUser(ctx context.Context, token string) (types.AuthSession, error) {
	username, err := s.tokens.ExtractUsername(token)
	if err != nil {
		return types.AuthSession{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !s.tokens.Validate(token, username) {
		return types.AuthSession{}, ErrInvalidToken
	}
	rawID, err := s.tokens.ExtractUserID(token)
	if err != nil {
		return types.AuthSession{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return types.AuthSession{}, fmt.Errorf("%w: bad user id", ErrInvalidToken)
	}
	expiresAt, err := s.tokens.ExtractExpiration(token)
	if err != nil {
		return types.AuthSession{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.AuthSession{}, ErrInvalidToken
		}
		return types.AuthSession{}, err
	}
	if user.Username != username {
		return types.AuthSession{}, ErrInvalidToken
	}
	return types.NewAuthSession(user, token, expiresAt), nil
}

func (s *AuthService) lookup(ctx context.Context, login string) (types.User, error) {
	user, err := s.users.GetByUsername(ctx, login)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return user, err
	}
	return s.users.GetByEmail(ctx, login)
}
