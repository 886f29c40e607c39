// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

const (
	testTokenSecret   = "tokens-secret-0123456789abcdef0123456789"
	testSessionSecret = "session-secret-0123456789abcdef012345678"
)

// testEnv isolates config loading from the developer machine.
func testEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("COURSEVOICE_DATABASE_URL", "postgres://cv:cv@localhost:5432/cv?sslmode=disable")
	t.Setenv("COURSEVOICE_TOKENS_SECRET", testTokenSecret)
	t.Setenv("COURSEVOICE_SESSION_SECRET", testSessionSecret)
	t.Setenv("COURSEVOICE_LOG_LEVEL", "error")
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, ctx context.Context, deps *Deps, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd(deps)
	return run(t, ctx, cmd, stdin, append([]string{"--env-file", "-"}, args...)...)
}

func run(t *testing.T, ctx context.Context, cmd *cobra.Command, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}
