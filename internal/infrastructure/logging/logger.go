package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nerrad567/cync-lan-core/internal/infrastructure/config"
)

// Logger wraps slog.Logger with cync-lan specific functionality.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
	slowThreshold time.Duration
}

// New creates a new Logger with the specified configuration.
//
// cfg.Format selects the handler shape: "json" for machine output, "human"
// for text, "both" fans every record out to both.
func New(cfg config.LoggingConfig) *Logger {
	level := parseLevel(cfg.Debug)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "human":
		handler = slog.NewTextHandler(os.Stdout, opts)
	case "both":
		handler = &fanoutHandler{
			json: slog.NewJSONHandler(os.Stdout, opts),
			text: slog.NewTextHandler(os.Stdout, opts),
		}
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "cync-lan"),
	})

	return &Logger{
		Logger:        slog.New(handler),
		slowThreshold: time.Duration(cfg.SlowThresholdMS) * time.Millisecond,
	}
}

func parseLevel(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// With returns a new Logger with additional default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger:        l.Logger.With(args...),
		slowThreshold: l.slowThreshold,
	}
}

// Slow logs a WARN "slow" record if elapsed exceeds the configured
// perf.threshold_ms. No-op when the threshold is zero or unmet.
func (l *Logger) Slow(op string, elapsed time.Duration, args ...any) {
	if l.slowThreshold <= 0 || elapsed < l.slowThreshold {
		return
	}
	all := append([]any{"op", op, "elapsed_ms", elapsed.Milliseconds()}, args...)
	l.Warn("slow", all...)
}

// Default creates a default logger for use before configuration is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Debug: false, Format: "json"})
}

// fanoutHandler duplicates every record to a JSON and a text handler, used
// for log.format="both".
type fanoutHandler struct {
	json slog.Handler
	text slog.Handler
}

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return f.json.Enabled(ctx, level) || f.text.Enabled(ctx, level)
}

func (f *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := f.json.Handle(ctx, r.Clone()); err != nil {
		return err
	}
	return f.text.Handle(ctx, r.Clone())
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fanoutHandler{json: f.json.WithAttrs(attrs), text: f.text.WithAttrs(attrs)}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	return &fanoutHandler{json: f.json.WithGroup(name), text: f.text.WithGroup(name)}
}
