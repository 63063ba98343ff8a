// Package telemetry wires the ambient logging/tracing/metrics stack
// (SPEC_FULL.md AMBIENT STACK). cmd/flatagentsd hands its logger to the
// daemon runner, the httpapi server and the work-pool reaper; the
// interpreter, strategies, launch runtime and backends take no logger.
// Grounded in
// itsneelabh-gomind's telemetry provider and r3e-network-service_layer's
// zerolog/prometheus choices.
package telemetry

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger builds the process-wide zerolog.Logger from the `log_level` /
// `log_format` environment knobs (§6). format is "json" (default, for
// production log shipping) or "console" (human-readable, for local runs).
func NewLogger(level string, format string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var out io.Writer = os.Stderr
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	logger = logger.Level(parseLevel(level))
	return logger
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// WithExecution returns a child logger carrying the interpreter's
// conventional correlation fields (§6): execution_id, machine, state, step.
func WithExecution(logger zerolog.Logger, executionID, machineName, state string, step int) zerolog.Logger {
	return logger.With().
		Str("execution_id", executionID).
		Str("machine", machineName).
		Str("state", state).
		Int("step", step).
		Logger()
}
