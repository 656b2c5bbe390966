// Package config parses ssp-backend's deployment settings from flags,
// environment variables (SSPBACKEND_ prefix), and optional YAML
// config files, with flags taking precedence over env vars, which take
// precedence over file values, which take precedence over defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"sspbackend/internal/sspshared/apperr"
)

// Settings is the fully resolved, validated deployment configuration
// for a single ssp-backend process.
type Settings struct {
	DevMode bool

	ListenAddress string
	ListenPort    uint16

	LogLevel     string
	OTLPEndpoint string

	DatabaseType string
	DatabaseURL  string

	Issuer   string
	Audience string
	JWKSURI  string

	SelfCanisterID       string
	ControllerPrincipals []string
}

const envPrefix = "SSPBACKEND"

// fileURIScheme prefixes a config value that should be resolved by
// reading the referenced file's contents instead of taking the value
// literally, so secrets (database DSNs, JWKS bootstrap material) can be
// mounted as files rather than passed as plaintext flags or env vars.
const fileURIScheme = "file://"

// Parse parses commandParameters (os.Args[1:]-shaped) into Settings
// using the global pflag.CommandLine flag set. requireValid runs
// validateConfiguration before returning; tests that want to inspect an
// intentionally-invalid Settings pass false.
func Parse(commandParameters []string, requireValid bool) (*Settings, error) {
	fs := pflag.NewFlagSet("ssp-backend", pflag.ContinueOnError)
	return ParseWithFlagSet(fs, commandParameters, requireValid)
}

// ParseWithFlagSet is Parse over an explicit, caller-owned FlagSet so
// tests can run without mutating pflag's global CommandLine state.
func ParseWithFlagSet(fs *pflag.FlagSet, commandParameters []string, requireValid bool) (*Settings, error) {
	var configFiles []string

	fs.BoolP("dev", "d", false, "enable development mode (relaxes bind-address checks)")
	fs.String("listen-address", "127.0.0.1", "address the HTTP server binds to")
	fs.Uint16("listen-port", 8080, "port the HTTP server binds to")
	fs.String("log-level", "INFO", "log level: TRACE, DEBUG, CONFIG, INFO, NOTICE, WARN, ERROR, FATAL, OFF")
	fs.String("otlp-endpoint", "", "OTLP/HTTP collector endpoint; empty selects stdout exporters")
	fs.String("database-type", "sqlite", "database backend: sqlite or postgres")
	fs.String("database-url", "file::memory:?cache=shared", "database connection string, or file:// to read it from a file")
	fs.String("issuer", "", "expected JWT issuer")
	fs.String("audience", "", "expected JWT audience")
	fs.String("jwks-uri", "", "JWKS bootstrap URI polled on admin-triggered sync")
	fs.String("self-canister-id", "", "this deployment's own canister id, used to derive delegation public keys")
	fs.StringSlice("controller-principals", nil, "principals authorized to perform admin operations")
	fs.StringSliceVar(&configFiles, "config", nil, "path to a YAML config file; repeatable, later files override earlier ones")

	if err := fs.Parse(commandParameters); err != nil {
		return nil, apperr.Wrap(apperr.KindValidationError, "failed to parse command line flags", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, apperr.Wrap(apperr.KindValidationError, "failed to bind flags", err)
	}

	for _, configFile := range configFiles {
		v.SetConfigFile(configFile)

		if err := v.MergeInConfig(); err != nil {
			return nil, apperr.Wrap(apperr.KindValidationError, fmt.Sprintf("failed to read config file %q", configFile), err)
		}
	}

	settings := &Settings{
		DevMode:              v.GetBool("dev"),
		ListenAddress:        v.GetString("listen-address"),
		ListenPort:           uint16(v.GetUint32("listen-port")),
		LogLevel:             strings.ToUpper(v.GetString("log-level")),
		OTLPEndpoint:         v.GetString("otlp-endpoint"),
		DatabaseType:         v.GetString("database-type"),
		DatabaseURL:          resolveFileURL(v.GetString("database-url")),
		Issuer:               v.GetString("issuer"),
		Audience:             v.GetString("audience"),
		JWKSURI:              v.GetString("jwks-uri"),
		SelfCanisterID:       v.GetString("self-canister-id"),
		ControllerPrincipals: v.GetStringSlice("controller-principals"),
	}

	if requireValid {
		if err := validateConfiguration(settings); err != nil {
			return nil, err
		}
	}

	return settings, nil
}

// resolveFileURL reads raw's content from disk when it carries the
// file:// prefix, returning raw unchanged otherwise. Read failures are
// swallowed and the literal value is kept, since an unreadable path is
// almost always a deliberately literal value that happens to start with
// the prefix in a test fixture.
func resolveFileURL(raw string) string {
	path, ok := strings.CutPrefix(raw, fileURIScheme)
	if !ok {
		return raw
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return raw
	}

	return strings.TrimSpace(string(content))
}

// validateConfiguration enforces the handful of invariants that can be
// checked without contacting the database or the JWKS endpoint.
func validateConfiguration(s *Settings) error {
	if s.ListenAddress == "" {
		return apperr.New(apperr.KindValidationError, "listen address cannot be blank")
	}

	if s.ListenAddress == "0.0.0.0" && s.DevMode {
		return apperr.New(apperr.KindValidationError, "CRITICAL: listen address cannot be 0.0.0.0 in dev mode")
	}

	if _, err := parseLogLevelName(s.LogLevel); err != nil {
		return err
	}

	switch s.DatabaseType {
	case "sqlite", "sqlite3", "postgres", "postgresql":
	default:
		return apperr.New(apperr.KindValidationError, fmt.Sprintf("unsupported database type %q", s.DatabaseType))
	}

	if s.DatabaseURL == "" {
		return apperr.New(apperr.KindValidationError, "database URL cannot be blank")
	}

	if s.Issuer == "" {
		return apperr.New(apperr.KindValidationError, "issuer cannot be blank")
	}

	if s.Audience == "" {
		return apperr.New(apperr.KindValidationError, "audience cannot be blank")
	}

	return nil
}

// parseLogLevelName validates a level name without importing the
// logging package, avoiding an import cycle between config and logging
// (logging will in turn depend on a parsed Settings in cmd/ wiring).
func parseLogLevelName(name string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "ALL", "TRACE", "DEBUG", "CONFIG", "INFO", "NOTICE", "WARN", "WARNING", "ERROR", "FATAL", "OFF":
		return strings.ToUpper(name), nil
	default:
		return "", apperr.New(apperr.KindValidationError, fmt.Sprintf("unsupported log level %q", name))
	}
}

// NewTestConfig builds a valid Settings for tests, overriding only the
// bind address/port most tests care about.
func NewTestConfig(listenAddress string, listenPort uint16, devMode bool) *Settings {
	return &Settings{
		DevMode:              devMode,
		ListenAddress:        listenAddress,
		ListenPort:           listenPort,
		LogLevel:             "INFO",
		DatabaseType:         "sqlite",
		DatabaseURL:          "file::memory:?cache=shared",
		Issuer:               "https://auth.example.com/",
		Audience:             "ssp-backend",
		JWKSURI:              "https://auth.example.com/.well-known/jwks.json",
		SelfCanisterID:       "aaaaa-aa",
		ControllerPrincipals: []string{"2vxsx-fae"},
	}
}
