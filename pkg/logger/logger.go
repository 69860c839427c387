// Package logger configures the process-wide slog logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Config selects level, encoding and destination.
type Config struct {
	Level  string    // debug, info, warn, error
	Format string    // json, text
	Output io.Writer // defaults to os.Stdout
}

// Attribute keys whose values never reach the log.
var redacted = map[string]bool{
	"secret":            true,
	"token":             true,
	"turnstile_token":   true,
	"secret_access_key": true,
	"authorization":     true,
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	var lvl slog.Level
	name := strings.TrimSpace(s)
	if strings.EqualFold(name, "warning") {
		name = "warn"
	}
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// New builds a logger from cfg without installing it. Debug loggers
// include the calling file and line.
func New(cfg *Config) *slog.Logger {
	lvl := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   lvl <= slog.LevelDebug,
		ReplaceAttr: replaceAttr,
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if redacted[strings.ToLower(a.Key)] {
		return slog.String(a.Key, "[redacted]")
	}
	if a.Key == slog.SourceKey {
		if src, ok := a.Value.Any().(*slog.Source); ok {
			src.File = filepath.Join(filepath.Base(filepath.Dir(src.File)), filepath.Base(src.File))
		}
	}
	return a
}

// Setup installs a logger built from cfg as the default.
func Setup(cfg *Config) {
	slog.SetDefault(New(cfg))
}

// SetupDevelopment logs everything as text on stderr, keeping stdout free
// for command output.
func SetupDevelopment() {
	Setup(&Config{Level: "debug", Format: "text", Output: os.Stderr})
}
