// Package auth issues and verifies bearer tokens and decides which routes
// require an authenticated identity.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is used when the service is constructed with a zero TTL.
const DefaultTokenTTL = 24 * time.Hour

var (
	// ErrMalformedToken is returned when a token cannot be decoded at all.
	ErrMalformedToken = errors.New("malformed token")
	// ErrInvalidSignature is returned when a token was not signed with the
	// current secret.
	ErrInvalidSignature = errors.New("invalid token signature")
)

// Claims is the payload carried by every issued token. Subject holds the
// username.
type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// IssuedToken is a freshly signed token with its validity window.
type IssuedToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenService signs and verifies HS256 tokens with a single process-wide
// secret. It is safe for concurrent use.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option customizes a TokenService.
type Option func(*TokenService)

// WithClock overrides the time source used for issuing and validating.
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewTokenService(secret string, ttl time.Duration, opts ...Option) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	s := &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the validity window applied to issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for username/userID that expires exactly TTL after
// its issued-at instant.
func (s *TokenService) Issue(username, userID string) (IssuedToken, error) {
	if strings.TrimSpace(username) == "" {
		return IssuedToken{}, errors.New("username is required")
	}
	issuedAt := s.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(s.ttl)

	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Value: signed, IssuedAt: issuedAt, ExpiresAt: expiresAt}, nil
}

// Validate reports whether the token carries a valid signature, has not
// expired, and was issued for expectedUsername. It never returns an error.
func (s *TokenService) Validate(tokenString, expectedUsername string) bool {
	claims, err := s.parse(tokenString, jwt.WithExpirationRequired())
	if err != nil {
		return false
	}
	return claims.Subject != "" && claims.Subject == expectedUsername
}

// ExtractUsername decodes the subject without checking expiry.
func (s *TokenService) ExtractUsername(tokenString string) (string, error) {
	claims, err := s.decode(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ExtractUserID decodes the user id claim without checking expiry.
func (s *TokenService) ExtractUserID(tokenString string) (string, error) {
	claims, err := s.decode(tokenString)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// ExtractExpiration decodes the expiry instant without checking it.
func (s *TokenService) ExtractExpiration(tokenString string) (time.Time, error) {
	claims, err := s.decode(tokenString)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("%w: missing exp", ErrMalformedToken)
	}
	return claims.ExpiresAt.Time, nil
}

func (s *TokenService) decode(tokenString string) (*Claims, error) {
	return s.parse(tokenString, jwt.WithoutClaimsValidation())
}

func (s *TokenService) parse(tokenString string, opts ...jwt.ParserOption) (*Claims, error) {
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, classify(err)
	}
	if !token.Valid {
		return nil, ErrMalformedToken
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidClaims) && !isTimeClaimError(err):
		return fmt.Errorf("%w: %w", ErrMalformedToken, err)
	default:
		return err
	}
}

func isTimeClaimError(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired) ||
		errors.Is(err, jwt.ErrTokenNotValidYet) ||
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued) ||
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing)
}
