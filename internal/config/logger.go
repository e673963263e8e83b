package config

import (
    "log/slog"
    "os"
    "strings"
)

// NewLogger builds the process logger: JSON lines in production, text
// otherwise.  Unknown levels fall back to info.
func NewLogger(prod bool, level string) *slog.Logger {
    var lvl slog.Level
    if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
        lvl = slog.LevelInfo
    }
    opts := &slog.HandlerOptions{Level: lvl}
    if prod {
        return slog.New(slog.NewJSONHandler(os.Stdout, opts))
    }
    return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
