package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "memory", cfg.PersistenceBackend)
	assert.Equal(t, 1000, cfg.MaxStepsDefault)
}

func TestLoad_MergesRawValues(t *testing.T) {
	cfg, err := Load(map[string]any{
		"persistence_backend": "redis",
		"redis_url":           "redis://example:6379/1",
	})
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.PersistenceBackend)
	assert.Equal(t, "redis://example:6379/1", cfg.RedisURL)
}

func TestLoad_ValidationRejectsBadBackend(t *testing.T) {
	_, err := Load(map[string]any{"persistence_backend": "carrier-pigeon"})
	assert.Error(t, err)
}

func TestResolveEnvVar_RequiredAndDefault(t *testing.T) {
	os.Setenv("FLATAGENTS_TEST_VAR", "hello")
	defer os.Unsetenv("FLATAGENTS_TEST_VAR")

	assert.Equal(t, "hello", ResolveEnvVar("${FLATAGENTS_TEST_VAR}"))
	assert.Equal(t, "fallback", ResolveEnvVar("${FLATAGENTS_UNSET_VAR:fallback}"))
	assert.Equal(t, "", ResolveEnvVar("${FLATAGENTS_UNSET_VAR}"))
	assert.Equal(t, "literal-value", ResolveEnvVar("literal-value"))
}

func TestResolveEnvVars_WalksNestedStructures(t *testing.T) {
	os.Setenv("FLATAGENTS_TEST_NESTED", "nested-value")
	defer os.Unsetenv("FLATAGENTS_TEST_NESTED")

	input := map[string]any{
		"a": "${FLATAGENTS_TEST_NESTED}",
		"b": []any{"${FLATAGENTS_TEST_NESTED}", "plain"},
		"c": map[string]any{"d": "${FLATAGENTS_TEST_NESTED}"},
	}
	resolved := ResolveEnvVars(input).(map[string]any)
	assert.Equal(t, "nested-value", resolved["a"])
	assert.Equal(t, "nested-value", resolved["b"].([]any)[0])
	assert.Equal(t, "nested-value", resolved["c"].(map[string]any)["d"])
}

func TestLoadMachine_ParsesYAMLAndDefaultsMaxSteps(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/machine.yaml"
	require.NoError(t, os.WriteFile(path, []byte(`
name: order_flow
states:
  start:
    type: initial
    transitions:
      - to: done
  done:
    type: final
`), 0o644))

	cfg, err := LoadMachine(path)
	require.NoError(t, err)
	assert.Equal(t, "order_flow", cfg.Name)
	assert.Equal(t, 1000, cfg.Settings.MaxSteps)
	require.Contains(t, cfg.States, "start")
	assert.True(t, cfg.States["start"].IsInitial())
}
