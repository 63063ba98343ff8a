package telemetry

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(parseLevel("warn"))

	logger.Info().Msg("should be filtered")
	assert.Empty(t, buf.String())

	logger.Warn().Msg("should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestWithExecution_AddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	logger := WithExecution(base, "exec-1", "machine-a", "state-b", 3)
	logger.Info().Msg("hi")

	out := buf.String()
	assert.Contains(t, out, `"execution_id":"exec-1"`)
	assert.Contains(t, out, `"machine":"machine-a"`)
	assert.Contains(t, out, `"state":"state-b"`)
	assert.Contains(t, out, `"step":3`)
}

func TestMetrics_RegistersWithoutPanicking(t *testing.T) {
	m := NewMetrics()
	m.ExecutionsStarted.Inc()
	m.ExecutionsFinished.Inc()
	m.ExecutionsFailed.WithLabelValues("agent").Inc()
	m.Launches.WithLabelValues("child").Inc()
	m.StepDuration.Observe(0.01)

	mfs, err := m.Registry.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, mfs)
}
