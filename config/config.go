// Package config loads the rokidstream binary's configuration from
// environment variables with sensible defaults.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all binary configuration.
type Config struct {
	// Role selects which end this process plays: "connect" discovers and
	// dials a peer, "advertise" publishes the service and waits.
	Role string

	// Transport selects the channel: "lan" or "l2cap".
	Transport string

	// Codec selects the NAL numbering family: "h264" or "h265".
	Codec string

	// LAN transport ports (advertise role).
	PrimaryPort   int
	SecondaryPort int

	// WantReverse opens an independent reverse channel when available.
	WantReverse bool

	// Session timing.
	HeartbeatInterval time.Duration
	LivenessTimeout   time.Duration

	// MetricsAddr serves Prometheus metrics when non-empty (e.g. ":9090").
	MetricsAddr string

	// Debug enables debug-level logging.
	Debug bool
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		Role:              getEnv("ROLE", "connect"),
		Transport:         getEnv("TRANSPORT", "lan"),
		Codec:             getEnv("CODEC", "h264"),
		PrimaryPort:       getEnvInt("PRIMARY_PORT", 0),
		SecondaryPort:     getEnvInt("SECONDARY_PORT", 0),
		WantReverse:       getEnvBool("WANT_REVERSE", true),
		HeartbeatInterval: getEnvDuration("HEARTBEAT_INTERVAL", 5*time.Second),
		LivenessTimeout:   getEnvDuration("LIVENESS_TIMEOUT", 30*time.Second),
		MetricsAddr:       getEnv("METRICS_ADDR", ""),
		Debug:             getEnvBool("DEBUG", false),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
