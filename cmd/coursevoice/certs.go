// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/coursevoice/coursevoice/internal/tls"
	"github.com/coursevoice/coursevoice/internal/xdg"
)

// NewCertsCmd creates the certs command tree.
func NewCertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Manage development TLS certificates",
	}
	cmd.AddCommand(newCertsGenerateCmd())
	return cmd
}

func newCertsGenerateCmd() *cobra.Command {
	var (
		dir   string
		hosts []string
		name  string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Create a local CA and an API server certificate",
		Long: `Create a local certificate authority (reused when one already exists in
the directory) and a server certificate for the given hosts. Point
http.tls_cert and http.tls_key at the printed files to serve HTTPS.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				dir = xdg.CertsDir()
			}
			if err := xdg.EnsureDir(dir); err != nil {
				return err //nolint:wrapcheck // already coded
			}

			ca, err := tls.LoadCA(dir)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				if ca, err = tls.GenerateCA(name); err != nil {
					return err //nolint:wrapcheck // already coded
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Created CA %q\n", ca.Certificate.Subject.CommonName)
			case err != nil:
				return err //nolint:wrapcheck // already coded
			default:
				fmt.Fprintf(cmd.ErrOrStderr(), "Reusing CA %q\n", ca.Certificate.Subject.CommonName)
			}

			server, err := tls.GenerateServerCert(ca, hosts)
			if err != nil {
				return err //nolint:wrapcheck // already coded
			}
			if err := tls.SaveCertificates(dir, ca, server); err != nil {
				return err //nolint:wrapcheck // already coded
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "http.tls_cert: %s\n", filepath.Join(dir, tls.ServerFile))
			fmt.Fprintf(out, "http.tls_key: %s\n", filepath.Join(dir, tls.ServerKeyFile))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "output directory (default: $XDG_CONFIG_HOME/coursevoice/certs)")
	cmd.Flags().StringSliceVar(&hosts, "host", tls.DefaultHosts, "DNS name or IP for the server certificate (repeatable)")
	cmd.Flags().StringVar(&name, "name", "dev", "name embedded in the CA common name")
	return cmd
}
