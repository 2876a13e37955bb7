// Package sqldb provides database operations for the auth service.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"
	"github.com/pressly/goose/v3"

	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/sdk/models"
	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/sdk/sqldb/migrations"
)

// PostgreSQL error codes.
// https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

var (
	ErrDBNotFound          = sql.ErrNoRows
	ErrDBDuplicatedEntry   = errors.New("duplicated entry")
	ErrForeignKeyViolation = errors.New("foreign key violation")
)

// Store represents the durable credential and reset-token store.
type Store interface {
	// Health returns a map of health status information.
	Health() map[string]string

	// Close terminates the database connection.
	Close() error

	// Migrate runs pending schema migrations.
	Migrate(ctx context.Context) error

	// User operations
	GetUserByID(ctx context.Context, userID string) (models.User, error)
	GetUserByCPF(ctx context.Context, cpf string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	UpdateUserPassword(ctx context.Context, userID string, newHash []byte, updatedAt time.Time) error

	// Password reset token operations
	CreatePasswordResetToken(ctx context.Context, token models.PasswordResetToken) (models.PasswordResetToken, error)
	GetPasswordResetToken(ctx context.Context, token string) (models.PasswordResetToken, error)
	DeletePasswordResetTokensByUserID(ctx context.Context, userID string) error
	DeleteExpiredPasswordResetTokens(ctx context.Context) error

	// ConsumePasswordResetToken updates the user's password and marks the
	// reset record used in a single transaction.
	ConsumePasswordResetToken(ctx context.Context, tokenID, userID string, newHash []byte, now time.Time) error
}

type store struct {
	db *sql.DB
}

var (
	database = os.Getenv("AUTH_DB_DATABASE")
	password = os.Getenv("AUTH_DB_PASSWORD")
	username = os.Getenv("AUTH_DB_USERNAME")
	port     = os.Getenv("AUTH_DB_PORT")
	host     = os.Getenv("AUTH_DB_HOST")

	dbInstance *store
)

func New() Store {
	// Reuse connection
	if dbInstance != nil {
		return dbInstance
	}
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", username, password, host, port, database)
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		log.Fatal(err)
	}
	dbInstance = &store{
		db: db,
	}
	return dbInstance
}

// Migrate applies the embedded goose migrations.
func (s *store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Health checks the health of the database connection by pinging the database.
func (s *store) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	err := s.db.PingContext(ctx)
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"

	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()

	return stats
}

// Close closes the database connection.
func (s *store) Close() error {
	log.Printf("Disconnected from database: %s", database)
	return s.db.Close()
}

// ---------------------------------------------
// User Operations
// ---------------------------------------------

const userColumns = `
	id::text,
	name,
	email,
	cpf,
	password_hash,
	guardian_name,
	guardian_relation,
	guardian_phone,
	guardian_cpf,
	created_at,
	updated_at
`

// GetUserByID retrieves a user by their ID.
func (s *store) GetUserByID(ctx context.Context, userID string) (models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1
	`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrDBNotFound
		}
		return models.User{}, fmt.Errorf("selecting user: %w", err)
	}

	return user, nil
}

// GetUserByCPF retrieves a user by their national document number.
func (s *store) GetUserByCPF(ctx context.Context, cpf string) (models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE cpf = $1
	`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, cpf))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrDBNotFound
		}
		return models.User{}, fmt.Errorf("selecting user by cpf: %w", err)
	}

	return user, nil
}

// GetUserByEmail retrieves a user by their email address.
func (s *store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1
	`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrDBNotFound
		}
		return models.User{}, fmt.Errorf("selecting user by email: %w", err)
	}

	return user, nil
}

// CreateUser inserts a new user. Unique violations on cpf or email surface as
// ErrDBDuplicatedEntry so concurrent registrations resolve to a conflict.
func (s *store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	const query = `
		INSERT INTO users (id, name, email, cpf, password_hash, guardian_name, guardian_relation, guardian_phone, guardian_cpf, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + userColumns + `
	`

	created, err := scanUser(s.db.QueryRowContext(ctx, query,
		user.ID,
		user.Name,
		NullString(user.Email),
		user.CPF,
		user.PasswordHash,
		NullString(user.GuardianName),
		NullString(user.GuardianRelation),
		NullString(user.GuardianPhone),
		NullString(user.GuardianCPF),
		user.CreatedAt,
		user.UpdatedAt,
	))

	if err != nil {
		if isPgError(err, uniqueViolation) {
			return models.User{}, ErrDBDuplicatedEntry
		}
		return models.User{}, fmt.Errorf("creating user: %w", err)
	}

	return created, nil
}

// UpdateUserPassword replaces a user's password hash.
func (s *store) UpdateUserPassword(ctx context.Context, userID string, newHash []byte, updatedAt time.Time) error {
	const query = `
		UPDATE users
		SET password_hash = $1,
		    updated_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, newHash, updatedAt, userID)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrDBNotFound
	}

	return nil
}

// ---------------------------------------------
// Password Reset Token Operations
// ---------------------------------------------

// CreatePasswordResetToken inserts a new password reset token.
func (s *store) CreatePasswordResetToken(ctx context.Context, token models.PasswordResetToken) (models.PasswordResetToken, error) {
	const query = `
		INSERT INTO password_reset_tokens (id, user_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id::text, user_id::text, token, expires_at, used_at, created_at
	`

	var created models.PasswordResetToken
	err := s.db.QueryRowContext(ctx, query,
		token.ID,
		token.UserID,
		token.Token,
		token.ExpiresAt,
		token.CreatedAt,
	).Scan(
		&created.ID,
		&created.UserID,
		&created.Token,
		&created.ExpiresAt,
		&created.UsedAt,
		&created.CreatedAt,
	)

	if err != nil {
		if isPgError(err, foreignKeyViolation) {
			return models.PasswordResetToken{}, ErrForeignKeyViolation
		}
		return models.PasswordResetToken{}, fmt.Errorf("creating password reset token: %w", err)
	}

	return created, nil
}

// GetPasswordResetToken retrieves a reset token record by its token value.
// Used and expired records are returned as-is; the caller decides how stale
// records are rejected.
func (s *store) GetPasswordResetToken(ctx context.Context, token string) (models.PasswordResetToken, error) {
	const query = `
		SELECT
			id::text,
			user_id::text,
			token,
			expires_at,
			used_at,
			created_at
		FROM password_reset_tokens
		WHERE token = $1
	`

	var record models.PasswordResetToken
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&record.ID,
		&record.UserID,
		&record.Token,
		&record.ExpiresAt,
		&record.UsedAt,
		&record.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PasswordResetToken{}, ErrDBNotFound
		}
		return models.PasswordResetToken{}, fmt.Errorf("getting password reset token: %w", err)
	}

	return record, nil
}

// DeletePasswordResetTokensByUserID removes all reset tokens for a user.
func (s *store) DeletePasswordResetTokensByUserID(ctx context.Context, userID string) error {
	const query = `
		DELETE FROM password_reset_tokens
		WHERE user_id = $1
	`

	_, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("deleting reset tokens for user: %w", err)
	}

	return nil
}

// DeleteExpiredPasswordResetTokens removes all expired or used reset tokens.
func (s *store) DeleteExpiredPasswordResetTokens(ctx context.Context) error {
	const query = `
		DELETE FROM password_reset_tokens
		WHERE expires_at < CURRENT_TIMESTAMP OR used_at IS NOT NULL
	`

	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("deleting expired reset tokens: %w", err)
	}

	return nil
}

// ConsumePasswordResetToken applies the password change and marks the reset
// record used inside one transaction. A record that was consumed by a
// concurrent request makes the update a no-op and the transaction rolls back.
func (s *store) ConsumePasswordResetToken(ctx context.Context, tokenID, userID string, newHash []byte, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const markUsed = `
		UPDATE password_reset_tokens
		SET used_at = $1
		WHERE id = $2
		AND used_at IS NULL
	`
	result, err := tx.ExecContext(ctx, markUsed, now, tokenID)
	if err != nil {
		return fmt.Errorf("marking reset token used: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDBNotFound
	}

	const updatePassword = `
		UPDATE users
		SET password_hash = $1,
		    updated_at = $2
		WHERE id = $3
	`
	result, err = tx.ExecContext(ctx, updatePassword, newHash, now, userID)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	rowsAffected, err = result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDBNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing reset: %w", err)
	}

	return nil
}

// ---------------------------------------------
// Helpers
// ---------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(scanner rowScanner) (models.User, error) {
	var user models.User
	var email, guardianName, guardianRelation, guardianPhone, guardianCPF sql.NullString
	if err := scanner.Scan(
		&user.ID,
		&user.Name,
		&email,
		&user.CPF,
		&user.PasswordHash,
		&guardianName,
		&guardianRelation,
		&guardianPhone,
		&guardianCPF,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return models.User{}, err
	}

	user.Email = StringPtr(email)
	user.GuardianName = StringPtr(guardianName)
	user.GuardianRelation = StringPtr(guardianRelation)
	user.GuardianPhone = StringPtr(guardianPhone)
	user.GuardianCPF = StringPtr(guardianCPF)

	return user, nil
}

// isPgError checks if the error is a PostgreSQL error with the given code.
func isPgError(err error, code string) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == code
	}
	return false
}

// NullString creates a sql.NullString from a string pointer.
func NullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// NullTime creates a sql.NullTime from a time.Time pointer.
func NullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// StringPtr returns a pointer to a string from sql.NullString.
func StringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// TimePtr returns a pointer to a time.Time from sql.NullTime.
func TimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	return &nt.Time
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDBNotFound)
}

// IsDuplicateEntry checks if the error is a duplicate entry error.
func IsDuplicateEntry(err error) bool {
	return isPgError(err, uniqueViolation)
}
