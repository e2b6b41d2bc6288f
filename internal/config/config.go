// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

// Package config loads Hearthgate configuration from a YAML file with
// command-line flag overrides.
package config

import (
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/hearthgate/hearthgate/internal/authz"
	"github.com/hearthgate/hearthgate/internal/authz/audit"
)

// Config is the full process configuration. Flags override file values;
// file values override defaults.
type Config struct {
	Authz    AuthzConfig    `koanf:"authz"`
	Database DatabaseConfig `koanf:"database"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
}

// AuthzConfig selects and tunes the authorizer strategy.
type AuthzConfig struct {
	// Algorithm is one of "none", "role", "permissions"; empty selects
	// permissions.
	Algorithm string `koanf:"algorithm"`

	// RequirePlaceHeader makes the role strategy's default path demand a
	// session place.
	RequirePlaceHeader bool `koanf:"require_place_header"`

	// EnforceSelfCheck makes the role strategy verify that self-service
	// operations target the acting principal.
	EnforceSelfCheck bool `koanf:"enforce_self_check"`

	// AuditMode is "denials_only" or "all".
	AuditMode string `koanf:"audit_mode"`
}

// DatabaseConfig holds grant store connection settings.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// MetricsConfig holds the observability endpoint settings.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is "json" or "text".
	Format string `koanf:"format"`
}

// Default returns the configuration used when no file or flags are given.
func Default() *Config {
	return &Config{
		Authz: AuthzConfig{
			Algorithm:          string(authz.AlgorithmPermissions),
			RequirePlaceHeader: true,
			EnforceSelfCheck:   true,
			AuditMode:          string(audit.ModeDenialsOnly),
		},
		Metrics: MetricsConfig{Addr: ":9090"},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from the given file path (optional) and flag set
// (optional), layered over defaults. Validation runs on the merged result.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_PARSE_FAILED").With("path", path).Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the merged configuration for values that would fail
// later, so misconfiguration surfaces at startup instead of first use.
func (c *Config) Validate() error {
	if _, err := authz.ParseAlgorithm(c.Authz.Algorithm); err != nil {
		return err
	}
	switch audit.Mode(c.Authz.AuditMode) {
	case audit.ModeDenialsOnly, audit.ModeAll, "":
	default:
		return oops.Code("CONFIG_INVALID").
			With("audit_mode", c.Authz.AuditMode).
			Errorf("unknown audit mode %q", c.Authz.AuditMode)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return oops.Code("CONFIG_INVALID").
			With("level", c.Log.Level).
			Errorf("unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text", "":
	default:
		return oops.Code("CONFIG_INVALID").
			With("format", c.Log.Format).
			Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Flags returns the flag set recognized by Load. Flag names mirror the
// koanf key paths; flag defaults mirror Default() so an unchanged flag
// never masks a file value.
func Flags() *pflag.FlagSet {
	def := Default()
	fs := pflag.NewFlagSet("hearthgate", pflag.ContinueOnError)
	fs.String("authz.algorithm", def.Authz.Algorithm, "authorizer algorithm (none, role, permissions)")
	fs.Bool("authz.require_place_header", def.Authz.RequirePlaceHeader, "require a session place on default-path decisions")
	fs.Bool("authz.enforce_self_check", def.Authz.EnforceSelfCheck, "enforce actor/destination match on self-service operations")
	fs.String("authz.audit_mode", def.Authz.AuditMode, "audit logging mode (denials_only, all)")
	fs.String("database.url", def.Database.URL, "grant store PostgreSQL URL")
	fs.String("metrics.addr", def.Metrics.Addr, "metrics listen address")
	fs.String("log.level", def.Log.Level, "log level (debug, info, warn, error)")
	fs.String("log.format", def.Log.Format, "log format (json, text)")
	return fs
}
