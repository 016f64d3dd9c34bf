package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/duckchart/duckchart/internal/cli/duckchartctl"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("DUCKCHART_CLI_TIMEOUT")), 30*time.Second)
	options := duckchartctl.Options{
		BaseURL: envOr("DUCKCHART_API_URL", "http://localhost:8080"),
		APIKey:  strings.TrimSpace(os.Getenv("DUCKCHART_API_KEY")),
		Owner:   strings.TrimSpace(os.Getenv("DUCKCHART_OWNER")),
		Timeout: timeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}

	code := duckchartctl.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid DUCKCHART_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
