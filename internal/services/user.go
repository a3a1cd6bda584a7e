package services

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/taskboard/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	SetActive(ctx context.Context, username string, active bool) error
}

// NewUser carries the fields needed to provision an account.
type NewUser struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo UserRepository
	cost int
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo, cost: bcrypt.DefaultCost}
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

// Register validates input, hashes the password and stores an active user.
func (s *UserService) Register(ctx context.Context, in NewUser) (types.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return types.User{}, fmt.Errorf("%w: username is required", ErrValidation)
	}
	if strings.Contains(username, "@") {
		return types.User{}, fmt.Errorf("%w: username must not contain @", ErrValidation)
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil {
		return types.User{}, fmt.Errorf("%w: invalid email", ErrValidation)
	}
	if len(in.Password) < minPasswordLength {
		return types.User{}, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	return s.repo.Create(ctx, types.User{
		Username:     username,
		Email:        addr.Address,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: string(hash),
		Active:       true,
	})
}

func (s *UserService) Deactivate(ctx context.Context, username string) error {
	return s.repo.SetActive(ctx, username, false)
}

func (s *UserService) Activate(ctx context.Context, username string) error {
	return s.repo.SetActive(ctx, username, true)
}
