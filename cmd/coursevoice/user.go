// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/coursevoice/coursevoice/internal/auth"
	"github.com/coursevoice/coursevoice/internal/auth/postgres"
)

// NewUserCmd creates the user command group.
func NewUserCmd(flags *globalFlags, deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUserCreateCmd(flags, deps))
	return cmd
}

type userCreateOptions struct {
	email        string
	role         string
	displayName  string
	passwordHash string
}

func newUserCreateCmd(flags *globalFlags, deps *Deps) *cobra.Command {
	opts := &userCreateOptions{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account of any role",
		Long: `Create an account directly in the database. This is the only way to
create admin accounts. The password is read from the terminal unless
--password-hash supplies an existing argon2id or bcrypt hash.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUserCreate(cmd, flags, deps.withDefaults(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.email, "email", "", "account email (required)")
	cmd.Flags().StringVar(&opts.role, "role", string(auth.RoleAdmin), "role: student, lecturer, guest or admin")
	cmd.Flags().StringVar(&opts.displayName, "name", "", "display name")
	cmd.Flags().StringVar(&opts.passwordHash, "password-hash", "", "pre-computed password hash")
	//nolint:errcheck // flag exists
	cmd.MarkFlagRequired("email")

	return cmd
}

func runUserCreate(cmd *cobra.Command, flags *globalFlags, deps *Deps, opts *userCreateOptions) error {
	role, err := auth.ParseRole(opts.role)
	if err != nil {
		return err
	}

	secret := opts.passwordHash
	hasher := auth.NewArgon2idHasher()
	if secret != "" {
		if !hasher.IsAlreadyHashed(secret) {
			return oops.Code("USER_HASH_INVALID").Errorf("--password-hash is not an argon2id or bcrypt hash")
		}
	} else {
		secret, err = newSecretReader(cmd, deps.ReadPassword).ReadConfirmed("Password: ")
		if err != nil {
			return err
		}
		if rules, ok := auth.RulesFor(role); ok && len(secret) < rules.MinPasswordLength {
			return oops.Code("USER_PASSWORD_TOO_SHORT").
				With("min", rules.MinPasswordLength).
				Errorf("password must be at least %d characters for %s accounts", rules.MinPasswordLength, role)
		}
	}

	cfg, err := flags.loadConfig(cmd, nil, true)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	ctx := cmd.Context()
	db, err := deps.Connect(ctx, cfg.ConnectConfig(), logger)
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").With("operation", "connect database").Wrap(err)
	}
	defer db.Close()

	svc, err := auth.NewAuthService(postgres.NewUserRepository(db), hasher, logger)
	if err != nil {
		return err
	}
	user, err := svc.Provision(ctx, opts.email, secret, role, opts.displayName)
	if err != nil {
		return err
	}

	cmd.Printf("Created %s account %d for %s\n", user.Role, user.ID, user.Email)
	return nil
}
