// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/oops"
)

// Service provides registration and password login.
type Service struct {
	users  UserRepository
	hasher PasswordHasher
	logger *slog.Logger
}

// NewAuthService creates a new Service.
func NewAuthService(users UserRepository, hasher PasswordHasher, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("logger is required")
	}
	return &Service{users: users, hasher: hasher, logger: logger}, nil
}

// dummyPasswordHash is verified when the email is unknown so both branches
// spend the same argon2id work. It never matches any password.
//
//nolint:gosec // G101: not a credential
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Login checks email and password. Unknown emails and wrong passwords both
// return ErrInvalidCredentials (wrapped). Legacy digests are upgraded on
// success; a failed upgrade does not fail the login.
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	user, lookupErr := s.users.FindByEmail(ctx, NormalizeEmail(email))

	targetHash := dummyPasswordHash
	exists := false
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
		exists = true
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "find user by email").
			Wrap(lookupErr)
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !exists {
			return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID).
			Wrap(verifyErr)
	}

	if !exists || !valid {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	return user, nil
}

func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed", "user_id", user.ID, "error", err)
		return
	}
	if err := s.users.UpdatePassword(ctx, user.ID, newHash); err != nil {
		s.logger.WarnContext(ctx, "storing upgraded password hash failed", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = newHash
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", user.ID)
}

// Register validates req against the role rules and creates the user.
func (s *Service) Register(ctx context.Context, req RegistrationRequest) (*User, error) {
	req.Email = NormalizeEmail(req.Email)
	req.Role = Role(strings.ToLower(string(req.Role)))
	if err := ValidateRegistration(req); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	user, err := NewUser(req.Email, hash, req.Role, req.DisplayName)
	if err != nil {
		return nil, err
	}
	if req.StudentNumber != "" {
		user.StudentNumber = &req.StudentNumber
	}
	if req.StaffID != "" {
		user.StaffID = &req.StaffID
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, oops.Code("USER_EMAIL_TAKEN").Wrap(err)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "create user").Wrap(err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID, "role", string(user.Role))
	return user, nil
}

// Provision creates a user outside self-service registration, for operator
// tooling and data imports. secret may be a plaintext password or an
// existing argon2id or bcrypt digest, which is stored as is.
func (s *Service) Provision(ctx context.Context, email, secret string, role Role, displayName string) (*User, error) {
	hash := secret
	if !s.hasher.IsAlreadyHashed(secret) {
		var err error
		if hash, err = s.hasher.Hash(secret); err != nil {
			return nil, oops.Code("AUTH_PROVISION_FAILED").With("operation", "hash password").Wrap(err)
		}
	}

	user, err := NewUser(email, hash, role, displayName)
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, oops.Code("USER_EMAIL_TAKEN").Wrap(err)
		}
		return nil, oops.Code("AUTH_PROVISION_FAILED").With("operation", "create user").Wrap(err)
	}

	s.logger.InfoContext(ctx, "user provisioned", "user_id", user.ID, "role", string(user.Role))
	return user, nil
}
