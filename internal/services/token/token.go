// Package token issues and verifies the stateless bearer tokens presented on
// every authenticated request.
package token

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers malformed, tampered and expired tokens alike. The
// causes are deliberately not distinguished to callers.
var ErrInvalidToken = errors.New("invalid_token")

const defaultLifetime = 24 * time.Hour

type Claims struct {
	jwt.RegisteredClaims
}

// Service signs and parses compact bearer tokens carrying a subject and expiry.
type Service struct {
	secretKey []byte
	lifetime  time.Duration

	now func() time.Time
}

// NewService loads the signing secret and token lifetime from the
// environment. A missing secret is unrecoverable.
func NewService() (*Service, error) {
	secret := strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET"))
	if secret == "" {
		return nil, errors.New("AUTH_JWT_SECRET is not set")
	}

	lifetime := defaultLifetime
	if raw := strings.TrimSpace(os.Getenv("AUTH_JWT_LIFETIME")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing AUTH_JWT_LIFETIME: %w", err)
		}
		lifetime = parsed
	}

	return newService([]byte(secret), lifetime), nil
}

func newService(secret []byte, lifetime time.Duration) *Service {
	return &Service{
		secretKey: secret,
		lifetime:  lifetime,
		now:       time.Now,
	}
}

// Issue produces a signed token embedding the subject id, issued now and
// expiring after the configured lifetime.
func (s *Service) Issue(subjectID string) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	return signed, nil
}

// Verify checks signature integrity and expiry and returns the embedded
// subject id. Every failure mode collapses to ErrInvalidToken.
func (s *Service) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}

	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)

	parsed, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	if claims.Subject == "" {
		return "", ErrInvalidToken
	}

	return claims.Subject, nil
}
