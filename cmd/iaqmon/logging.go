package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"go.uber.org/multierr"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mklimuk/iaqmon/config"
)

func consoleHandler(w io.Writer, verbose bool) *chlog.Logger {
	charm := chlog.NewWithOptions(w, chlog.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})
	charm.SetColorProfile(termenv.TrueColor)
	charm.SetLevel(chlog.InfoLevel)
	if verbose {
		charm.SetLevel(chlog.DebugLevel)
	}
	return charm
}

// fileHandler writes logfmt records to a rotating file. It returns nil when
// file logging is disabled.
func fileHandler(cfg config.Log) (slog.Handler, io.Closer, error) {
	if cfg.File == "" {
		return nil, nil, nil
	}
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	rotated := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}
	charm := chlog.NewWithOptions(rotated, chlog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Formatter:       chlog.LogfmtFormatter,
		Level:           chlog.Level(level),
	})
	return charm, rotated, nil
}

// fanout sends every record to each handler that accepts its level.
type fanout []slog.Handler

func newFanout(handlers ...slog.Handler) slog.Handler {
	var f fanout
	for _, h := range handlers {
		if h != nil {
			f = append(f, h)
		}
	}
	if len(f) == 1 {
		return f[0]
	}
	return f
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var err error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			err = multierr.Append(err, h.Handle(ctx, r.Clone()))
		}
	}
	return err
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
