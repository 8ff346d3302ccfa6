package config

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// NewLogger returns a JSON logger in production and a tinted console logger
// everywhere else. Colors are only used when f is a terminal.
func NewLogger(f *os.File, environment string, level slog.Level) *slog.Logger {
	if environment == EnvProduction {
		return slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	}

	// systemd adds its own timestamps
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return newTintLogger(colorable.NewColorable(f), !isatty.IsTerminal(f.Fd()), underSystemd, level)
}

func newTintLogger(w io.Writer, noColor, dropTime bool, level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if dropTime && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			if a.Value.Kind() == slog.KindDuration {
				return slog.String(a.Key, a.Value.Duration().Round(time.Millisecond/10).String())
			}
			return a
		},
	}))
}
