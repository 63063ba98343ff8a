package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/flatagents/flatagents/machine"
)

// LoadMachine reads a YAML machine definition from path and decodes it into
// a machine.Config (§6 "Machine configuration (on-disk)").
func LoadMachine(path string) (*machine.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return DecodeMachine(raw)
}

// DecodeMachine decodes raw YAML bytes into a machine.Config.
func DecodeMachine(raw []byte) (*machine.Config, error) {
	var cfg machine.Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse machine definition: %w", err)
	}
	if cfg.Settings.MaxSteps == 0 {
		cfg.Settings.MaxSteps = machine.DefaultMaxSteps
	}
	for name, state := range cfg.States {
		state.Name = name
	}
	return &cfg, nil
}
