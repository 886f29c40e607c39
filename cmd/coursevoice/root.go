// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/coursevoice/coursevoice/internal/config"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configFile string
	envFile    string
}

// NewRootCmd creates the root command for the CourseVoice CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "coursevoice",
		Short: "CourseVoice - anonymous course feedback",
		Long: `CourseVoice collects anonymous course feedback from students.
This binary serves the authentication API and manages its database.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configFile, "config", "",
		"config file path (default: $XDG_CONFIG_HOME/coursevoice/config.yaml)")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", config.DefaultEnvFile,
		`dotenv file loaded before reading the environment ("-" to skip)`)

	cmd.AddCommand(NewServeCmd(flags, deps))
	cmd.AddCommand(NewMigrateCmd(flags, deps))
	cmd.AddCommand(NewUserCmd(flags, deps))
	cmd.AddCommand(newHashPasswordCmd(deps))
	cmd.AddCommand(NewCertsCmd())

	return cmd
}

// loadConfig reads configuration for cmd. Only flags named in flagKeys can
// override config keys.
func (f *globalFlags) loadConfig(cmd *cobra.Command, flagKeys map[string]string, databaseOnly bool) (*config.Config, error) {
	//nolint:wrapcheck // config errors are already coded
	return config.Load(config.LoadOptions{
		File:         f.configFile,
		EnvFile:      f.envFile,
		Flags:        cmd.Flags(),
		FlagKeys:     flagKeys,
		DatabaseOnly: databaseOnly,
	})
}
