// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package main

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// secretReader reads passwords without echo from a terminal, or one line
// at a time from piped input.
type secretReader struct {
	cmd          *cobra.Command
	readPassword func(fd int) ([]byte, error)
	terminal     *os.File
	lines        *bufio.Reader
}

func newSecretReader(cmd *cobra.Command, readPassword func(fd int) ([]byte, error)) *secretReader {
	r := &secretReader{cmd: cmd, readPassword: readPassword}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		r.terminal = f
		return r
	}
	r.lines = bufio.NewReader(in)
	return r
}

// Read prompts on stderr and returns the entered secret.
func (r *secretReader) Read(prompt string) (string, error) {
	if r.terminal != nil {
		r.cmd.PrintErr(prompt)
		secret, err := r.readPassword(int(r.terminal.Fd()))
		r.cmd.PrintErrln()
		if err != nil {
			return "", oops.Code("INPUT_READ_FAILED").Wrap(err)
		}
		return string(secret), nil
	}

	line, err := r.lines.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", oops.Code("INPUT_READ_FAILED").Wrap(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadConfirmed reads a secret twice and fails when the entries differ.
// Piped input is read once.
func (r *secretReader) ReadConfirmed(prompt string) (string, error) {
	secret, err := r.Read(prompt)
	if err != nil {
		return "", err
	}
	if secret == "" {
		return "", oops.Code("INPUT_EMPTY").Errorf("password must not be empty")
	}
	if r.terminal == nil {
		return secret, nil
	}
	again, err := r.Read("Confirm password: ")
	if err != nil {
		return "", err
	}
	if again != secret {
		return "", oops.Code("INPUT_MISMATCH").Errorf("passwords do not match")
	}
	return secret, nil
}
