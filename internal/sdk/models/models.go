// Package models defines data models for the care coordination auth service.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account holder: either a patient managing their own
// treatment schedule or a guardian acting on behalf of a child.
type User struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            *string   `json:"email,omitempty"`
	CPF              string    `json:"cpf"`
	PasswordHash     []byte    `json:"-"`
	GuardianName     *string   `json:"guardian_name,omitempty"`
	GuardianRelation *string   `json:"guardian_relation,omitempty"`
	GuardianPhone    *string   `json:"guardian_phone,omitempty"`
	GuardianCPF      *string   `json:"guardian_cpf,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewUser carries the fields accepted when creating a user.
type NewUser struct {
	Name         string
	CPF          string
	Email        *string
	PasswordHash []byte
}

// NewUserRecord builds a persistable User from registration input. IDs and
// timestamps are assigned here, not by database triggers, so every creation
// path produces a fully populated record.
func NewUserRecord(nu NewUser, now time.Time) User {
	return User{
		ID:           uuid.NewString(),
		Name:         nu.Name,
		CPF:          nu.CPF,
		Email:        nu.Email,
		PasswordHash: nu.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// PasswordResetToken represents a single-use password recovery secret.
type PasswordResetToken struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Token     string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewPasswordResetToken carries the fields accepted when issuing a reset token.
type NewPasswordResetToken struct {
	UserID    string
	Token     string
	ExpiresAt time.Time
}

// NewPasswordResetRecord builds a persistable PasswordResetToken.
func NewPasswordResetRecord(nt NewPasswordResetToken, now time.Time) PasswordResetToken {
	return PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    nt.UserID,
		Token:     nt.Token,
		ExpiresAt: nt.ExpiresAt,
		CreatedAt: now,
	}
}

// GuardianView is the responsible-party block of the public user view.
type GuardianView struct {
	Name     *string `json:"name"`
	Relation *string `json:"relation"`
	Phone    *string `json:"phone"`
	CPF      *string `json:"cpf"`
}

// UserView is the public representation of a user returned by auth endpoints.
// The password hash never leaves the service boundary.
type UserView struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Email         *string      `json:"email"`
	EmailVerified bool         `json:"email_verified"`
	CPF           string       `json:"cpf"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	Guardian      GuardianView `json:"guardian"`
}

// NewUserView maps a User onto its public view.
func NewUserView(u User) UserView {
	return UserView{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		EmailVerified: u.Email != nil,
		CPF:           u.CPF,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
		Guardian: GuardianView{
			Name:     u.GuardianName,
			Relation: u.GuardianRelation,
			Phone:    u.GuardianPhone,
			CPF:      u.GuardianCPF,
		},
	}
}
