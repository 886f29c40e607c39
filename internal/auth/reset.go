// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes    = 32        // 32 bytes = 64 hex chars
	DefaultResetWindow = time.Hour // validity of an issued token
)

// PasswordResetToken is a stored reset request. Only the sha256 of the raw
// token is kept; the raw value lives in the emailed link.
type PasswordResetToken struct {
	ID        ulid.ULID
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewPasswordResetToken creates a PasswordResetToken with a fresh ID.
func NewPasswordResetToken(userID int64, tokenHash string, expiresAt time.Time) (*PasswordResetToken, error) {
	if userID <= 0 {
		return nil, oops.Code("RESET_INVALID_USER").With("user_id", userID).Errorf("user id must be positive")
	}
	if len(tokenHash) != sha256.Size*2 {
		return nil, oops.Code("RESET_INVALID_HASH").Errorf("token hash must be a hex sha256 digest")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("RESET_INVALID_EXPIRY").Errorf("expiry is required")
	}
	return &PasswordResetToken{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// IsExpiredAt reports whether the token is past its expiry at now.
// A token is still valid at exactly ExpiresAt.
func (r *PasswordResetToken) IsExpiredAt(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// GenerateResetToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
// The plaintext token is sent to the user; the hash is stored.
func GenerateResetToken() (token, hash string, err error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashResetToken(token), nil
}

// VerifyResetToken checks if the plaintext token matches the stored hash
// in constant time.
func VerifyResetToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashResetToken(token)), []byte(hash)) == 1
}

// HashResetToken returns the hex sha256 of a raw reset token.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// PasswordResetRepository persists reset tokens keyed by their hash.
type PasswordResetRepository interface {
	// Create stores a new reset token.
	Create(ctx context.Context, token *PasswordResetToken) error

	// GetByTokenHash returns ErrNotFound (wrapped) for an unknown hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*PasswordResetToken, error)

	// DeleteByUser removes every reset token of a user.
	DeleteByUser(ctx context.Context, userID int64) error

	// DeleteExpired removes tokens that expired before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Mailer delivers an HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}
