// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/coursevoice/coursevoice/internal/xdg"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "COURSEVOICE_"

// DefaultEnvFile is the dotenv file read from the working directory.
const DefaultEnvFile = ".env.local"

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// File is an explicit config path and must exist. When empty the XDG
	// config file is used if present.
	File string
	// EnvFile is loaded into the process environment without overriding
	// variables that are already set. Missing files are ignored. Defaults to
	// DefaultEnvFile; "-" disables it.
	EnvFile string
	// Flags are applied last. Only flags the user changed take effect, and
	// FlagKeys maps their names to config keys.
	Flags    *pflag.FlagSet
	FlagKeys map[string]string
	// DatabaseOnly validates only the database settings, for commands that
	// never serve traffic.
	DatabaseOnly bool
}

// Load builds the configuration. Precedence, lowest first: defaults, the
// YAML file, the environment (COURSEVOICE_HTTP_ADDR sets http.addr), flags.
// The result is validated.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	if err := loadFile(k, opts.File); err != nil {
		return nil, err
	}

	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	known := envKeys(k.Keys())
	err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(name, value string) (string, any) {
		key := known[strings.ToLower(strings.TrimPrefix(name, EnvPrefix))]
		if listKeys[key] {
			return key, splitList(value)
		}
		return key, value
	}), nil)
	if err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if opts.Flags != nil {
		err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := opts.FlagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		}), nil)
		if err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "unmarshal").Wrap(err)
	}
	validate := cfg.Validate
	if opts.DatabaseOnly {
		validate = cfg.ValidateDatabase
	}
	if err := validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	explicit := path != ""
	if !explicit {
		path = xdg.ConfigFile()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.Code("CONFIG_FILE_UNREADABLE").With("path", path).Wrap(err)
	}
	if err := ValidateYAML(data); err != nil {
		return oops.With("path", path).Wrap(err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("source", "file").With("path", path).Wrap(err)
	}
	return nil
}

func loadEnvFile(path string) error {
	switch path {
	case "-":
		return nil
	case "":
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return oops.Code("CONFIG_ENV_FILE_INVALID").With("path", path).Wrap(err)
	}
	return nil
}

// listKeys hold comma-separated lists when set from the environment.
var listKeys = map[string]bool{
	"http.cors_origins":    true,
	"http.trusted_proxies": true,
}

func splitList(value string) []string {
	out := []string{}
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// envKeys maps the underscore form of each key ("session_cookie_name") to
// the key itself ("session.cookie_name"). Unknown variables map to "" and
// are skipped.
func envKeys(keys []string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		out[strings.ReplaceAll(key, ".", "_")] = key
	}
	return out
}
