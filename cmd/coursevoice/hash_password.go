// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coursevoice/coursevoice/internal/auth"
)

// NewHashPasswordCmd creates the hash-password subcommand.
func NewHashPasswordCmd() *cobra.Command {
	return newHashPasswordCmd(nil)
}

func newHashPasswordCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Print the argon2id hash of a password",
		Long: `Read a password from the terminal (or one line of standard input) and
print its argon2id hash, suitable for "user create --password-hash".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reader := newSecretReader(cmd, deps.withDefaults().ReadPassword)
			password, err := reader.ReadConfirmed("Password: ")
			if err != nil {
				return err
			}
			hash, err := auth.NewArgon2idHasher().Hash(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
