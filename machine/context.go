package machine

import (
	"encoding/json"
	"fmt"

	"github.com/Jeffail/gabs/v2"
)

// Context is the single mutable JSON object that flows through one machine
// execution (§3). It is mutated only via output_to_context mappings and hook
// returns (§3 "Context" lifecycle) — the interpreter never mutates it
// directly outside those merge points.
type Context map[string]any

// Clone returns a deep copy via JSON round-trip, guaranteeing the copy is
// itself JSON-serializable (invariant 5, §3) and that concurrent fan-out
// siblings never share the parent's Context value (§5 "Shared resources").
func (c Context) Clone() (Context, error) {
	raw, err := json.Marshal(map[string]any(c))
	if err != nil {
		return nil, fmt.Errorf("context not JSON-serializable: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("context round-trip failed: %w", err)
	}
	return Context(out), nil
}

// Get resolves a dotted path (e.g. "user.profile.name") against the context,
// built on gabs for JSON-pointer-style traversal. Returns (nil, false) if
// any intermediate segment is missing.
func (c Context) Get(path string) (any, bool) {
	container := gabs.Wrap(map[string]any(c))
	if !container.ExistsP(path) {
		return nil, false
	}
	return container.Path(path).Data(), true
}

// Set writes a value at a dotted path, creating intermediate objects as
// needed. Used by output_to_context merges and context_init evaluation.
func (c Context) Set(path string, value any) error {
	container := gabs.Wrap(map[string]any(c))
	_, err := container.SetP(value, path)
	return err
}

// Merge applies a flat map of dotted-path → value updates onto the context,
// the mechanism behind output_to_context (§4.G).
func (c Context) Merge(updates map[string]any) error {
	for path, value := range updates {
		if err := c.Set(path, value); err != nil {
			return fmt.Errorf("merging %q into context: %w", path, err)
		}
	}
	return nil
}

// ToMap returns the plain map[string]any view used by the expression engine.
func (c Context) ToMap() map[string]any { return map[string]any(c) }
