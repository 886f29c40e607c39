// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursevoice/coursevoice/internal/auth"
	"github.com/coursevoice/coursevoice/pkg/errutil"
)

var userRowColumns = []string{
	"id", "email", "password_hash", "role", "display_name",
	"student_number", "staff_id", "created_at", "updated_at",
}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func strPtr(s string) *string { return &s }

func TestUserRepository_Create(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("assigns generated id", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs("ada@uni.example", "$argon2id$hash", "student", "Ada",
				strPtr("s1234567"), (*string)(nil), now, now).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

		user := &auth.User{
			Email:         "ada@uni.example",
			PasswordHash:  "$argon2id$hash",
			Role:          auth.RoleStudent,
			DisplayName:   "Ada",
			StudentNumber: strPtr("s1234567"),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		require.NoError(t, NewUserRepository(mock).Create(context.Background(), user))
		assert.Equal(t, int64(42), user.ID)
	})

	t.Run("duplicate email maps to ErrEmailTaken", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"})

		err := NewUserRepository(mock).Create(context.Background(), &auth.User{
			Email: "ada@uni.example", Role: auth.RoleStudent, CreatedAt: now, UpdatedAt: now,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrEmailTaken)
		errutil.AssertErrorCode(t, err, "USER_EMAIL_TAKEN")
		errutil.AssertErrorContext(t, err, "constraint", "users_email_key")
	})

	t.Run("other database errors are wrapped", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("connection refused"))

		err := NewUserRepository(mock).Create(context.Background(), &auth.User{Role: auth.RoleStudent})
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrEmailTaken)
		errutil.AssertErrorCode(t, err, "USER_CREATE_FAILED")
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestUserRepository_FindByEmail(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantID    int64
		wantRole  auth.Role
		wantCode  string
		wantErrIs error
	}{
		{
			name: "found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
					WithArgs("lin@uni.example").
					WillReturnRows(pgxmock.NewRows(userRowColumns).
						AddRow(int64(7), "lin@uni.example", "$argon2id$x", "lecturer", "Dr Lin",
							(*string)(nil), strPtr("EMP-9"), now, now))
			},
			wantID:   7,
			wantRole: auth.RoleLecturer,
		},
		{
			name: "not found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
					WithArgs("lin@uni.example").
					WillReturnError(pgx.ErrNoRows)
			},
			wantCode:  "USER_NOT_FOUND",
			wantErrIs: auth.ErrNotFound,
		},
		{
			name: "unknown stored role",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
					WithArgs("lin@uni.example").
					WillReturnRows(pgxmock.NewRows(userRowColumns).
						AddRow(int64(7), "lin@uni.example", "$argon2id$x", "superuser", "Dr Lin",
							(*string)(nil), (*string)(nil), now, now))
			},
			wantCode: "USER_INVALID_ROLE",
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
					WithArgs("lin@uni.example").
					WillReturnError(errors.New("connection reset"))
			},
			wantCode: "USER_SCAN_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			tt.setupMock(mock)

			user, err := NewUserRepository(mock).FindByEmail(context.Background(), "lin@uni.example")
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Nil(t, user)
				errutil.AssertErrorCode(t, err, tt.wantCode)
				if tt.wantErrIs != nil {
					assert.ErrorIs(t, err, tt.wantErrIs)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantID, user.ID)
			assert.Equal(t, tt.wantRole, user.Role)
			require.NotNil(t, user.StaffID)
			assert.Equal(t, "EMP-9", *user.StaffID)
			assert.Nil(t, user.StudentNumber)
		})
	}
}

func TestUserRepository_FindByID(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
			WithArgs(int64(3)).
			WillReturnRows(pgxmock.NewRows(userRowColumns).
				AddRow(int64(3), "root@uni.example", "$argon2id$x", "admin", "Root",
					(*string)(nil), (*string)(nil), now, now))

		user, err := NewUserRepository(mock).FindByID(context.Background(), 3)
		require.NoError(t, err)
		assert.Equal(t, auth.RoleAdmin, user.Role)
		assert.Equal(t, "root@uni.example", user.Email)
	})

	t.Run("not found carries user id", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
			WithArgs(int64(3)).
			WillReturnError(pgx.ErrNoRows)

		_, err := NewUserRepository(mock).FindByID(context.Background(), 3)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorContext(t, err, "user_id", int64(3))
	})
}

func TestUserRepository_UpdatePassword(t *testing.T) {
	t.Run("updates hash", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE users SET password_hash`).
			WithArgs(int64(5), "$argon2id$new", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, NewUserRepository(mock).UpdatePassword(context.Background(), 5, "$argon2id$new"))
	})

	t.Run("missing user", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE users SET password_hash`).
			WithArgs(int64(5), "$argon2id$new", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := NewUserRepository(mock).UpdatePassword(context.Background(), 5, "$argon2id$new")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("database error", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE users SET password_hash`).
			WithArgs(int64(5), "$argon2id$new", pgxmock.AnyArg()).
			WillReturnError(errors.New("deadlock detected"))

		err := NewUserRepository(mock).UpdatePassword(context.Background(), 5, "$argon2id$new")
		errutil.AssertErrorCode(t, err, "USER_UPDATE_PASSWORD_FAILED")
	})
}
