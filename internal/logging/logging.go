// Package logging holds the process-wide slog logger.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/masq"
)

type ctxKey struct{}

var defaultLogger atomic.Pointer[slog.Logger]

func init() {
	defaultLogger.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		ReplaceAttr: redactor(),
	})))
}

// Config selects the handler and level.
type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" | "json"
}

// ErrUnknownLevel is returned for a level string slog does not understand.
var ErrUnknownLevel = goerr.New("unknown log level")

// New builds a logger writing to w. Fields named like credentials are masked.
func New(w io.Writer, cfg Config) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactor(),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, goerr.New("unknown log format", goerr.V("format", cfg.Format))
	}
	return slog.New(handler), nil
}

// Configure installs a new default logger on stderr.
func Configure(cfg Config) error {
	logger, err := New(os.Stderr, cfg)
	if err != nil {
		return err
	}
	SetDefault(logger)
	return nil
}

func SetDefault(logger *slog.Logger) {
	defaultLogger.Store(logger)
}

func Default() *slog.Logger {
	return defaultLogger.Load()
}

// With returns a context carrying logger.
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// From returns the logger stored in ctx, or the default logger.
func From(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return Default()
}

// ErrAttrs flattens goerr values into log attributes.
func ErrAttrs(err error) []any {
	attrs := []any{slog.String("error", err.Error())}
	if ge := goerr.Unwrap(err); ge != nil {
		for k, v := range ge.Values() {
			attrs = append(attrs, slog.Any(k, v))
		}
	}
	return attrs
}

func redactor() func(groups []string, a slog.Attr) slog.Attr {
	return masq.New(
		masq.WithFieldName("APIKey"),
		masq.WithFieldName("api_key"),
		masq.WithFieldPrefix("Token"),
		masq.WithTag("secret"),
	)
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, goerr.Wrap(ErrUnknownLevel, "parse log level", goerr.V("level", s))
}
