// Package auth implements the credential lifecycle: registration, login,
// password recovery and bearer token resolution. It owns the password reset
// ledger and composes the token codec, the credential store and the
// notification sender.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/sdk/models"
	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/sdk/sqldb"
)

var (
	// ErrInvalidCredentials covers every login failure: unknown identifier,
	// wrong password, or no identifier at all.
	ErrInvalidCredentials = errors.New("invalid_credentials")
	// ErrUnauthenticated signals a bearer token that does not resolve to an
	// existing user.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrConflict signals a duplicate cpf or email on registration.
	ErrConflict = errors.New("conflict")
	// ErrUserNotFound signals a lookup miss on flows that disclose existence.
	ErrUserNotFound = errors.New("user_not_found")
	// ErrResetTokenNotFound signals an unknown reset token.
	ErrResetTokenNotFound = errors.New("reset_token_not_found")
	// ErrResetTokenInvalid signals a used or expired reset token.
	ErrResetTokenInvalid = errors.New("reset_token_invalid")
	// ErrNotificationFailed signals that the outbound mail channel rejected a
	// send. Persisted state is not rolled back.
	ErrNotificationFailed = errors.New("notification_failed")
)

const (
	bcryptCost = bcrypt.DefaultCost

	resetTokenBytes        = 32
	defaultResetTTLMinutes = 30

	tempPasswordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%"
)

// Store is the subset of the credential store the auth service depends on.
type Store interface {
	GetUserByID(ctx context.Context, userID string) (models.User, error)
	GetUserByCPF(ctx context.Context, cpf string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	UpdateUserPassword(ctx context.Context, userID string, newHash []byte, updatedAt time.Time) error

	CreatePasswordResetToken(ctx context.Context, token models.PasswordResetToken) (models.PasswordResetToken, error)
	GetPasswordResetToken(ctx context.Context, token string) (models.PasswordResetToken, error)
	DeletePasswordResetTokensByUserID(ctx context.Context, userID string) error
	ConsumePasswordResetToken(ctx context.Context, tokenID, userID string, newHash []byte, now time.Time) error
}

// TokenCodec issues and verifies bearer tokens.
type TokenCodec interface {
	Issue(subjectID string) (string, error)
	Verify(tokenString string) (string, error)
}

// Sender dispatches credential-related notifications.
type Sender interface {
	SendRegistrationWelcome(to, name, cpf, temporaryPassword string) error
	SendPasswordRecovery(to, name, resetToken string, expiresInMinutes int) error
	SendTemporaryPassword(to, name, temporaryPassword string) error
}

// Service coordinates the register, login, recover and temporary-password
// flows. Each call is independent; the only shared state is the store.
type Service struct {
	store Store
	codec TokenCodec
	mail  Sender

	resetTTL            time.Duration
	exposeRecoveryToken bool

	now func() time.Time
}

// NewService builds the auth service with TTL and debug-echo settings read
// from the environment.
func NewService(store Store, codec TokenCodec, mail Sender) *Service {
	ttlMinutes := defaultResetTTLMinutes
	if raw := strings.TrimSpace(os.Getenv("AUTH_RESET_TTL_MINUTES")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			ttlMinutes = parsed
		}
	}

	expose := strings.EqualFold(os.Getenv("AUTH_EXPOSE_RECOVERY_TOKEN"), "true")

	return &Service{
		store:               store,
		codec:               codec,
		mail:                mail,
		resetTTL:            time.Duration(ttlMinutes) * time.Minute,
		exposeRecoveryToken: expose,
		now:                 time.Now,
	}
}

// ResetTTLMinutes reports the configured reset token lifetime.
func (s *Service) ResetTTLMinutes() int {
	return int(s.resetTTL / time.Minute)
}

// ExposeRecoveryToken reports whether raw recovery secrets are echoed in
// responses. Intended for environments without email infrastructure only.
func (s *Service) ExposeRecoveryToken() bool {
	return s.exposeRecoveryToken
}

// AuthResult is a freshly issued bearer token plus the authenticated user.
type AuthResult struct {
	Token string
	User  models.User
}

// RegisterInput carries the registration fields.
type RegisterInput struct {
	Name  string
	CPF   string
	Email *string
}

// Register creates a user with a generated temporary password, mails the
// plaintext out-of-band and returns a bearer token. The user stays committed
// even when the mail dispatch fails.
func (s *Service) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	if err := s.ensureUniqueCPFAndEmail(ctx, input.CPF, input.Email); err != nil {
		return AuthResult{}, err
	}

	temporaryPassword, err := generateTemporaryPassword()
	if err != nil {
		return AuthResult{}, fmt.Errorf("generating temporary password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(temporaryPassword), bcryptCost)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hashing temporary password: %w", err)
	}

	record := models.NewUserRecord(models.NewUser{
		Name:         input.Name,
		CPF:          input.CPF,
		Email:        input.Email,
		PasswordHash: hash,
	}, s.now())

	created, err := s.store.CreateUser(ctx, record)
	if err != nil {
		if errors.Is(err, sqldb.ErrDBDuplicatedEntry) {
			// Lost a race against a concurrent registration.
			return AuthResult{}, ErrConflict
		}
		return AuthResult{}, fmt.Errorf("creating user: %w", err)
	}

	signed, err := s.codec.Issue(created.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issuing token: %w", err)
	}

	if created.Email == nil {
		slog.Warn("registration without email, skipping welcome mail", "user_id", created.ID)
		return AuthResult{Token: signed, User: created}, nil
	}

	if err := s.mail.SendRegistrationWelcome(*created.Email, created.Name, created.CPF, temporaryPassword); err != nil {
		slog.Error("welcome mail dispatch failed", "user_id", created.ID, "error", err)
		return AuthResult{Token: signed, User: created}, ErrNotificationFailed
	}

	return AuthResult{Token: signed, User: created}, nil
}

// Login resolves the supplied credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, cpf, email, password string) (AuthResult, error) {
	user, err := s.ResolveCredentials(ctx, cpf, email, password)
	if err != nil {
		return AuthResult{}, err
	}

	signed, err := s.codec.Issue(user.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issuing token: %w", err)
	}

	return AuthResult{Token: signed, User: user}, nil
}

// ResolveCredentials turns an identifier plus password into a verified user.
// The cpf wins when both identifiers are supplied. Every miss collapses to
// ErrInvalidCredentials so account existence is never revealed.
func (s *Service) ResolveCredentials(ctx context.Context, cpf, email, password string) (models.User, error) {
	user, err := s.findByCPFOrEmail(ctx, cpf, email)
	if err != nil {
		if errors.Is(err, sqldb.ErrDBNotFound) || errors.Is(err, errNoIdentifier) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, fmt.Errorf("looking up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}

	return user, nil
}

// ResolveToken verifies a bearer token and loads its subject. A token whose
// subject no longer exists fails closed.
func (s *Service) ResolveToken(ctx context.Context, tokenString string) (models.User, error) {
	subject, err := s.codec.Verify(tokenString)
	if err != nil {
		return models.User{}, ErrUnauthenticated
	}

	user, err := s.store.GetUserByID(ctx, subject)
	if err != nil {
		if errors.Is(err, sqldb.ErrDBNotFound) {
			return models.User{}, ErrUnauthenticated
		}
		return models.User{}, fmt.Errorf("loading token subject: %w", err)
	}

	return user, nil
}

// RequestRecovery issues a reset token for the matched account and mails it.
// An unknown identifier reports found=false so the handler can return the
// same generic response without any ledger or mail work.
func (s *Service) RequestRecovery(ctx context.Context, cpf, email string) (string, bool, error) {
	user, err := s.findByCPFOrEmail(ctx, cpf, email)
	if err != nil {
		if errors.Is(err, sqldb.ErrDBNotFound) || errors.Is(err, errNoIdentifier) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("looking up user: %w", err)
	}

	raw, err := s.issueResetToken(ctx, user)
	if err != nil {
		return "", true, err
	}

	if user.Email == nil {
		slog.Warn("recovery request without email", "user_id", user.ID)
		return raw, true, nil
	}

	if err := s.mail.SendPasswordRecovery(*user.Email, user.Name, raw, s.ResetTTLMinutes()); err != nil {
		slog.Error("recovery mail dispatch failed", "user_id", user.ID, "error", err)
		return raw, true, ErrNotificationFailed
	}

	return raw, true, nil
}

// ConfirmRecovery consumes a reset token and applies the new password. The
// password change and the used_at mark are committed atomically.
func (s *Service) ConfirmRecovery(ctx context.Context, rawToken, newPassword string) error {
	record, err := s.store.GetPasswordResetToken(ctx, rawToken)
	if err != nil {
		if errors.Is(err, sqldb.ErrDBNotFound) {
			return ErrResetTokenNotFound
		}
		return fmt.Errorf("looking up reset token: %w", err)
	}

	now := s.now()
	if record.UsedAt != nil || record.ExpiresAt.Before(now) {
		return ErrResetTokenInvalid
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hashing new password: %w", err)
	}

	if err := s.store.ConsumePasswordResetToken(ctx, record.ID, record.UserID, hash, now); err != nil {
		if errors.Is(err, sqldb.ErrDBNotFound) {
			// Consumed concurrently between lookup and commit.
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("consuming reset token: %w", err)
	}

	return nil
}

// SendTemporaryPassword replaces the user's password with a generated
// temporary one and mails it. The email was explicitly supplied as a lookup
// key, so a miss is disclosed as not-found.
func (s *Service) SendTemporaryPassword(ctx context.Context, email string) (string, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sqldb.ErrDBNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("looking up user by email: %w", err)
	}

	temporaryPassword, err := generateTemporaryPassword()
	if err != nil {
		return "", fmt.Errorf("generating temporary password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(temporaryPassword), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing temporary password: %w", err)
	}

	if err := s.store.UpdateUserPassword(ctx, user.ID, hash, s.now()); err != nil {
		return "", fmt.Errorf("updating user password: %w", err)
	}

	if err := s.mail.SendTemporaryPassword(email, user.Name, temporaryPassword); err != nil {
		slog.Error("temporary password mail dispatch failed", "user_id", user.ID, "error", err)
		return temporaryPassword, ErrNotificationFailed
	}

	return temporaryPassword, nil
}

// issueResetToken supersedes any prior records for the user, persists a fresh
// one and returns the raw secret for out-of-band delivery.
func (s *Service) issueResetToken(ctx context.Context, user models.User) (string, error) {
	if err := s.store.DeletePasswordResetTokensByUserID(ctx, user.ID); err != nil {
		return "", fmt.Errorf("superseding reset tokens: %w", err)
	}

	raw, err := generateSecureToken(resetTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generating reset token: %w", err)
	}

	now := s.now()
	record := models.NewPasswordResetRecord(models.NewPasswordResetToken{
		UserID:    user.ID,
		Token:     raw,
		ExpiresAt: now.Add(s.resetTTL),
	}, now)

	if _, err := s.store.CreatePasswordResetToken(ctx, record); err != nil {
		return "", fmt.Errorf("persisting reset token: %w", err)
	}

	return raw, nil
}

var errNoIdentifier = errors.New("no identifier supplied")

func (s *Service) findByCPFOrEmail(ctx context.Context, cpf, email string) (models.User, error) {
	if strings.TrimSpace(cpf) != "" {
		return s.store.GetUserByCPF(ctx, strings.TrimSpace(cpf))
	}
	if strings.TrimSpace(email) != "" {
		return s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	}
	return models.User{}, errNoIdentifier
}

func (s *Service) ensureUniqueCPFAndEmail(ctx context.Context, cpf string, email *string) error {
	if _, err := s.store.GetUserByCPF(ctx, cpf); err == nil {
		return ErrConflict
	} else if !errors.Is(err, sqldb.ErrDBNotFound) {
		return fmt.Errorf("checking cpf uniqueness: %w", err)
	}

	if email != nil && *email != "" {
		if _, err := s.store.GetUserByEmail(ctx, *email); err == nil {
			return ErrConflict
		} else if !errors.Is(err, sqldb.ErrDBNotFound) {
			return fmt.Errorf("checking email uniqueness: %w", err)
		}
	}

	return nil
}

// generateSecureToken generates a cryptographically secure random token.
func generateSecureToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// generateTemporaryPassword produces a short random password over a fixed
// alphabet, 6 to 8 characters long.
func generateTemporaryPassword() (string, error) {
	span, err := rand.Int(rand.Reader, big.NewInt(3))
	if err != nil {
		return "", err
	}
	length := 6 + int(span.Int64())

	buf := make([]byte, length)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(tempPasswordAlphabet))))
		if err != nil {
			return "", err
		}
		buf[i] = tempPasswordAlphabet[idx.Int64()]
	}
	return string(buf), nil
}
