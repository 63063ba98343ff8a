package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// mergeInto applies rawValues onto an already-defaulted struct by
// round-tripping through YAML: marshal the raw map, then unmarshal into the
// struct, so only the keys present in rawValues overwrite fields (yaml.v3
// leaves unmentioned fields untouched).
func mergeInto(dst any, rawValues map[string]any) error {
	raw, err := yaml.Marshal(rawValues)
	if err != nil {
		return fmt.Errorf("encode raw values: %w", err)
	}
	if err := yaml.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode into config: %w", err)
	}
	return nil
}
