// Package config reads gateway settings from the environment. Every setting
// is a flat env string with a compiled-in default; there is no config file.
package config

import (
	"log/slog"
	"os"
	"strconv"
)

// EnvOr returns key's value, or fallback when unset or empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EnvOrInt parses key as an integer. A set-but-unparseable value falls back
// with a warning rather than failing startup.
func EnvOrInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("env var is not an integer, using fallback", "key", key, "value", v, "fallback", fallback)
		return fallback
	}
	return n
}

// EnvOrBool parses key with strconv.ParseBool semantics ("true", "1", "t"
// and friends). A set-but-unparseable value falls back with a warning.
func EnvOrBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("env var is not a boolean, using fallback", "key", key, "value", v, "fallback", fallback)
		return fallback
	}
	return b
}
