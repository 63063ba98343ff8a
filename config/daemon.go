package config

import (
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Daemon is the process-level configuration for cmd/flatagentsd, a single
// daemon-wide settings struct applied through a defaults → merge → validate
// pipeline.
type Daemon struct {
	HTTPAddr string `yaml:"http_addr" default:":8080" validate:"required"`

	// PersistenceBackend selects "memory", "file", or "redis".
	PersistenceBackend string `yaml:"persistence_backend" default:"memory" validate:"oneof=memory file redis"`
	PersistenceDir      string `yaml:"persistence_dir" default:"./data/snapshots"`

	// ResultBackend selects "memory" or "redis".
	ResultBackend string `yaml:"result_backend" default:"memory" validate:"oneof=memory redis"`

	// LockBackend selects "memory" or "redis".
	LockBackend string `yaml:"lock_backend" default:"memory" validate:"oneof=memory redis"`

	RedisURL string `yaml:"redis_url" default:"redis://localhost:6379/0"`

	MaxStepsDefault int `yaml:"max_steps_default" default:"1000" validate:"gt=0"`

	LogLevel string `yaml:"log_level" default:"info" validate:"oneof=debug info warn error"`

	OTLPEndpoint string `yaml:"otlp_endpoint"`

	MetricsAddr string `yaml:"metrics_addr" default:":9090"`

	WorkPoolEnabled bool `yaml:"work_pool_enabled" default:"false"`
	ReaperCron      string `yaml:"reaper_cron" default:"*/30 * * * *"`
}

var validate = validator.New()

// Load applies defaults to a zero-value Daemon, merges rawValues (typically
// decoded from a YAML config file with ${VAR} already resolved), and
// validates the result.
func Load(rawValues map[string]any) (*Daemon, error) {
	cfg := &Daemon{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config: apply defaults: %w", err)
	}

	if len(rawValues) > 0 {
		if err := mergeInto(cfg, rawValues); err != nil {
			return nil, fmt.Errorf("config: merge values: %w", err)
		}
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}
