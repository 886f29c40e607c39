// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursevoice/coursevoice/internal/auth"
	"github.com/coursevoice/coursevoice/pkg/errutil"
)

func TestNewUser(t *testing.T) {
	t.Run("normalizes email", func(t *testing.T) {
		user, err := auth.NewUser("  Alice@Example.COM ", "$argon2id$hash", auth.RoleStudent, " Alice ")
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.Equal(t, "Alice", user.DisplayName)
		assert.Equal(t, auth.RoleStudent, user.Role)
		assert.False(t, user.CreatedAt.IsZero())
		assert.Equal(t, user.CreatedAt, user.UpdatedAt)
	})

	tests := []struct {
		name  string
		email string
		hash  string
		role  auth.Role
		code  string
	}{
		{"empty email", "", "hash", auth.RoleStudent, "USER_INVALID_EMAIL"},
		{"malformed email", "not-an-email", "hash", auth.RoleStudent, "USER_INVALID_EMAIL"},
		{"too long email", strings.Repeat("a", 250) + "@b.io", "hash", auth.RoleStudent, "USER_INVALID_EMAIL"},
		{"empty hash", "a@b.com", "", auth.RoleStudent, "USER_INVALID_PASSWORD_HASH"},
		{"unknown role", "a@b.com", "hash", auth.Role("root"), "USER_INVALID_ROLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := auth.NewUser(tt.email, tt.hash, tt.role, "")
			require.Error(t, err)
			assert.Nil(t, user)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestUser_SessionUser(t *testing.T) {
	user := &auth.User{ID: 7, Email: "l@uni.edu", Role: auth.RoleLecturer, PasswordHash: "secret"}
	assert.Equal(t, auth.SessionUser{ID: 7, Email: "l@uni.edu", Role: auth.RoleLecturer}, user.SessionUser())
}
