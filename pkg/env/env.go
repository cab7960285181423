package env

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// GetStringFromFile reads KEY_FILE when set (Docker secrets) and falls back to KEY
func GetStringFromFile(key, defaultValue string) string {
	if filePath := os.Getenv(key + "_FILE"); filePath != "" {
		content, err := os.ReadFile(filepath.Clean(filePath))
		if err == nil {
			return string(bytes.TrimSpace(content))
		}
	}

	return GetString(key, defaultValue)
}

// GetString returns the environment variable value or the default value if not set
func GetString(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetInt returns the environment variable value as an integer or the default value if not set
func GetInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// GetUint32 is GetInt for counters that LiveKit expects as uint32
func GetUint32(key string, defaultValue uint32) uint32 {
	value, err := strconv.ParseUint(os.Getenv(key), 10, 32)
	if err != nil {
		return defaultValue
	}
	return uint32(value)
}

// GetBool returns the environment variable value as a boolean or the default value if not set
func GetBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// GetDuration parses values such as "10s" or "1m30s"
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// GetStringSlice splits a comma separated variable, dropping empty items
func GetStringSlice(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}

	var values []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}

// MustGetString returns the environment variable value or panics if not set
func MustGetString(key string) string {
	value := GetStringFromFile(key, "")
	if value == "" {
		panic("required environment variable " + key + " is not set")
	}
	return value
}
