// Package logging provides structured logging for cync-lan-core.
//
// It wraps log/slog with a fixed "service" field, level selection from
// log.debug, and a Slow helper that emits a WARN record when an
// instrumented operation exceeds perf.threshold_ms.
package logging
