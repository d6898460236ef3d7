package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrUnauthorized reports a missing, malformed, expired, or tampered token.
var ErrUnauthorized = errors.New("unauthorized")

// Roles issued at signup and carried in tokens.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Identity is the result of validating a token: who the caller is and what
// they may do. Immutable once issued.
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the identity may call admin endpoints.
func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Service issues and validates HMAC-signed bearer tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService builds a token service with the given signing secret and token
// lifetime.
func NewService(secret string, ttl time.Duration) *Service {
	return &Service{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// IssueToken signs a token for the user with the role claim embedded.
func (s *Service) IssueToken(userID, role string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a token, returning the identity it was
// issued for. Any defect maps to ErrUnauthorized.
func (s *Service) ValidateToken(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrUnauthorized
	}
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !token.Valid {
		return Identity{}, ErrUnauthorized
	}
	c, ok := token.Claims.(*claims)
	if !ok || c.Subject == "" {
		return Identity{}, ErrUnauthorized
	}
	return Identity{UserID: c.Subject, Role: c.Role}, nil
}

// HashPassword derives a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
