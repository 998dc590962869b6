package main

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type config struct {
	port           string
	serverURL      string
	allowedOrigins []string
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logLevel       string
}

func loadConfig() config {
	return config{
		port:           envStr("CONSOLE_PORT", "8080"),
		serverURL:      envStr("SERVER_URL", "http://localhost:8000"),
		allowedOrigins: envList("ALLOWED_ORIGINS", []string{"*"}),
		initialBackoff: envDur("STREAM_INITIAL_BACKOFF", time.Second),
		maxBackoff:     envDur("STREAM_MAX_BACKOFF", 30*time.Second),
		logLevel:       envStr("LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func envDur(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		// Bare numbers are read as seconds.
		if n, nerr := strconv.Atoi(val); nerr == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
		return fallback
	}
	return d
}
