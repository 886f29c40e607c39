// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/samber/oops"
)

// MaxEmailLength bounds stored email addresses.
const MaxEmailLength = 254

// User is an account in the credential store.
type User struct {
	ID            int64
	Email         string
	PasswordHash  string
	Role          Role
	DisplayName   string
	StudentNumber *string
	StaffID       *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewUser creates a User with a normalized email and a validated role.
// The ID is assigned by the store on Create.
func NewUser(email, passwordHash string, role Role, displayName string) (*User, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_PASSWORD_HASH").Errorf("password hash cannot be empty")
	}
	if !role.Valid() {
		return nil, oops.Code("USER_INVALID_ROLE").With("role", string(role)).Errorf("unknown role %q", role)
	}

	now := time.Now().UTC()
	return &User{
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		DisplayName:  strings.TrimSpace(displayName),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is a plausible address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("USER_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("USER_INVALID_EMAIL").
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	if err := validate.Var(email, "email"); err != nil {
		return oops.Code("USER_INVALID_EMAIL").With("email", email).Errorf("email is not a valid address")
	}
	return nil
}

// SessionUser returns the subset of u stored in a browser session.
func (u *User) SessionUser() SessionUser {
	return SessionUser{ID: u.ID, Email: u.Email, Role: u.Role}
}

// UserRepository manages user persistence.
type UserRepository interface {
	// FindByEmail returns ErrNotFound (wrapped) when no user has the email.
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	// Create assigns user.ID. Returns ErrEmailTaken (wrapped) on a duplicate email.
	Create(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}
