package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Env  string
	Addr string

	CORSAllow []string // origins allowed on the HTTP surface
	WSOrigins []string // origin patterns accepted on websocket upgrade

	OutboxBuffer int
	WriteTimeout time.Duration
}

func Load() Config {
	cfg := Config{
		Env:  getEnv("RELAY_ENV", "dev"),
		Addr: getEnv("RELAY_ADDR", ":8080"),
	}
	cfg.CORSAllow = splitCSV(getEnv("RELAY_CORS_ALLOW", "http://localhost:3000"))
	cfg.WSOrigins = splitCSV(getEnv("RELAY_WS_ORIGINS", "*"))
	cfg.OutboxBuffer = getEnvInt("RELAY_OUTBOX_BUFFER", 16)
	cfg.WriteTimeout = time.Duration(getEnvInt("RELAY_WRITE_TIMEOUT_SEC", 3)) * time.Second
	return cfg
}

// getEnv returns the env var or a default.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// getEnvInt parses an int env var with a fallback.
func getEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		var i int
		_, _ = fmt.Sscanf(v, "%d", &i)
		if i > 0 {
			return i
		}
	}
	return def
}

// splitCSV trims and filters a comma-separated list.
func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
