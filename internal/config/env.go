// Package config provides configuration helpers for the follower commands:
// environment overrides and config file loading.
package config

import (
	"os"
	"strings"
)

// Defaults used when neither flags nor environment say otherwise.
const (
	DefaultSensorURL = "ws://localhost:8765"
	DefaultWebPort   = "8080"
	DefaultLogLevel  = "info"
)

// SensorURL returns the sensor endpoint from SENSOR_URL.
// Falls back to the provided default if not set.
func SensorURL(defaultURL string) string {
	return env("SENSOR_URL", defaultURL)
}

// WebPort returns the dashboard port from WEB_PORT.
// Falls back to the provided default if not set.
func WebPort(defaultPort string) string {
	return env("WEB_PORT", defaultPort)
}

// LogLevel returns the log level from LOG_LEVEL or the default.
func LogLevel(defaultLevel string) string {
	return env("LOG_LEVEL", defaultLevel)
}

// ConfigPath returns the config file path from FOLLOWER_CONFIG, or "".
func ConfigPath() string {
	return env("FOLLOWER_CONFIG", "")
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
