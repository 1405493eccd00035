// Package util provides environment parsing and logging helpers shared
// across components.
package util

import (
	"log/slog"
	"os"
	"strings"
)

// ParseBoolEnv parses a boolean environment variable with a default value.
// Accepts: true/1/yes/on and false/0/no/off (case-insensitive). Invalid values return default.
func ParseBoolEnv(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		slog.Warn("ParseBoolEnv: invalid boolean value, using default", "key", key, "value", val, "default", defaultValue)
		return defaultValue
	}
}

// MaskPhone masks the middle of a phone number for log output, keeping the
// first and last two characters. Phone numbers are PHI and must never be
// logged in full.
func MaskPhone(number string) string {
	if len(number) <= 4 {
		return "***"
	}
	return number[:2] + strings.Repeat("*", len(number)-4) + number[len(number)-2:]
}
