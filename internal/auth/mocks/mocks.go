// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

// Package mocks provides testify mocks of the auth interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/coursevoice/coursevoice/internal/auth"
)

// T is the subset of testing.T the constructors need.
type T interface {
	mock.TestingT
	Cleanup(func())
}

// MockUserRepository mocks auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a mock that asserts its expectations on cleanup.
func NewMockUserRepository(t T) *MockUserRepository {
	m := &MockUserRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return m.Called(ctx, id, passwordHash).Error(0)
}

// MockPasswordResetRepository mocks auth.PasswordResetRepository.
type MockPasswordResetRepository struct {
	mock.Mock
}

// NewMockPasswordResetRepository creates a mock that asserts its expectations on cleanup.
func NewMockPasswordResetRepository(t T) *MockPasswordResetRepository {
	m := &MockPasswordResetRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordResetRepository) Create(ctx context.Context, token *auth.PasswordResetToken) error {
	return m.Called(ctx, token).Error(0)
}

func (m *MockPasswordResetRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.PasswordResetToken, error) {
	args := m.Called(ctx, tokenHash)
	token, _ := args.Get(0).(*auth.PasswordResetToken)
	return token, args.Error(1)
}

func (m *MockPasswordResetRepository) DeleteByUser(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockPasswordResetRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

// MockPasswordHasher mocks auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock that asserts its expectations on cleanup.
func NewMockPasswordHasher(t T) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	return m.Called(hash).Bool(0)
}

func (m *MockPasswordHasher) IsAlreadyHashed(value string) bool {
	return m.Called(value).Bool(0)
}

// MockMailer mocks auth.Mailer.
type MockMailer struct {
	mock.Mock
}

// NewMockMailer creates a mock that asserts its expectations on cleanup.
func NewMockMailer(t T) *MockMailer {
	m := &MockMailer{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	return m.Called(ctx, to, subject, htmlBody).Error(0)
}

// MockTokenValidator mocks auth.TokenValidator.
type MockTokenValidator struct {
	mock.Mock
}

// NewMockTokenValidator creates a mock that asserts its expectations on cleanup.
func NewMockTokenValidator(t T) *MockTokenValidator {
	m := &MockTokenValidator{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockTokenValidator) Validate(token string) (auth.Claims, error) {
	args := m.Called(token)
	claims, _ := args.Get(0).(auth.Claims)
	return claims, args.Error(1)
}

var (
	_ auth.UserRepository          = (*MockUserRepository)(nil)
	_ auth.PasswordResetRepository = (*MockPasswordResetRepository)(nil)
	_ auth.PasswordHasher          = (*MockPasswordHasher)(nil)
	_ auth.Mailer                  = (*MockMailer)(nil)
	_ auth.TokenValidator          = (*MockTokenValidator)(nil)
)
