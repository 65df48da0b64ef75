package observability

import (
	"log/slog"
	"os"
	"strings"

	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/version"
)

const ServiceName = "p2p-lending"

// NewLogger returns a JSON logger in production and a text logger elsewhere.
// Every record carries the service name, build version and env.
func NewLogger(env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if env == "prod" || env == "production" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(h).With("service", ServiceName, "version", version.Version, "env", env)
}

// ParseLevel maps debug, info, warn and error to slog levels. Unknown values fall back to info.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}
