// Package machine implements the state-machine interpreter: configuration
// types, the Context substrate, transitions, hooks, and the Loading → Initial
// → Executing → Transitioning → Final|Failed control loop (§3, §4.G).
package machine

import "gopkg.in/yaml.v3"

// Config is a machine configuration, immutable after load (§3).
type Config struct {
	Name         string                    `yaml:"name"`
	States       map[string]*State         `yaml:"states"`
	ContextInit  map[string]string         `yaml:"context_init"`
	Agents       map[string]AgentRef       `yaml:"agents"`
	Machines     map[string]MachineRef     `yaml:"machines"`
	Settings     Settings                  `yaml:"settings"`
	Persistence  PersistenceSettings       `yaml:"persistence"`
	Hooks        HookNames                 `yaml:"hooks"`
	ExprEngine   string                    `yaml:"expression_engine"` // "" or "simple" = default, "cel" = opt-in
	SpecVersion  string                    `yaml:"spec_version"`
}

// AgentRef names an agent usable by states: either a relative path to an
// agent definition file or an inline definition resolved upstream (§3).
type AgentRef struct {
	Path   string         `yaml:"path"`
	Inline map[string]any `yaml:"inline"`
}

// MachineRef names a child machine usable by machine-launch/launch states.
type MachineRef struct {
	Path   string         `yaml:"path"`
	Inline map[string]any `yaml:"inline"`
}

// Settings holds machine-level safety/runtime knobs.
type Settings struct {
	MaxSteps int `yaml:"max_steps"`
}

// DefaultMaxSteps is applied when Settings.MaxSteps is zero (§3).
const DefaultMaxSteps = 1000

// PersistenceSettings controls when snapshots are written (§3, §6). An empty
// CheckpointOn list writes a snapshot at every checkpoint event.
type PersistenceSettings struct {
	CheckpointOn []string `yaml:"checkpoint_on"` // e.g. "machine_start", "state_enter", "machine_end"
}

// HookNames is reserved for future named-hook-set configuration; the runtime
// Hooks record (hooks.go) is what callers actually inject (§4.G, §9).
type HookNames struct{}

// StateType distinguishes the mutually-constrained state shapes (§3).
type StateType string

const (
	StateTypeInitial StateType = "initial"
	StateTypeFinal   StateType = "final"
	StateTypeNormal  StateType = "" // agent / machine-launch / launch / action, inferred by payload
)

// State is one node of the machine graph. Exactly one field among
// Agent/Machine/Launch/Action/final Output is populated, per the state's
// role (§3's "mutually constrained" shapes).
type State struct {
	Name string    `yaml:"-"`
	Type StateType `yaml:"type"`

	// Agent state.
	Agent          string            `yaml:"agent"`
	Execution      *ExecutionConfig  `yaml:"execution"`
	Input          map[string]any    `yaml:"input"`
	OutputToContext map[string]string `yaml:"output_to_context"`
	OnError        OnErrorSpec       `yaml:"on_error"`

	// Machine-launch state.
	Machine StringOrList `yaml:"machine"`
	Foreach string       `yaml:"foreach"`
	As      string       `yaml:"as"`
	Key     string       `yaml:"key"`
	Mode    string       `yaml:"mode"` // "settled" (default) | "any"
	Timeout float64      `yaml:"timeout"`

	// Fire-and-forget state.
	Launch      StringOrList   `yaml:"launch"`
	LaunchInput map[string]any `yaml:"launch_input"`

	// Action state.
	Action string `yaml:"action"`

	// Final state.
	Output map[string]any `yaml:"output"`

	Transitions []Transition `yaml:"transitions"`
}

// IsInitial reports whether this is the machine's single entry state.
func (s *State) IsInitial() bool { return s.Type == StateTypeInitial }

// IsFinal reports whether this state terminates the machine.
func (s *State) IsFinal() bool { return s.Type == StateTypeFinal }

// IsAgent reports whether this is an agent-bearing state.
func (s *State) IsAgent() bool { return s.Agent != "" }

// IsMachineLaunch reports whether this is a blocking machine-launch state.
func (s *State) IsMachineLaunch() bool { return len(s.Machine) > 0 }

// IsFireAndForget reports whether this is a fire-and-forget launch state.
func (s *State) IsFireAndForget() bool { return len(s.Launch) > 0 }

// IsAction reports whether this is a hook-dispatched action state.
func (s *State) IsAction() bool { return s.Action != "" }

// ExecutionConfig selects and configures an execution strategy for an agent
// state (§4.F).
type ExecutionConfig struct {
	Type         string    `yaml:"type"` // "default" | "retry" | "parallel" | "mdap_voting"
	Backoffs     []float64 `yaml:"backoffs"`
	Jitter       float64   `yaml:"jitter"`
	NSamples     int       `yaml:"n_samples"`
	MaxCandidates int      `yaml:"max_candidates"`
	KMargin      float64   `yaml:"k_margin"`
}

// OnErrorSpec is either a single target state name or a mapping from error
// code (or "default") to a target state name (§4.G).
type OnErrorSpec struct {
	Target  string            `yaml:"-"`
	ByCode  map[string]string `yaml:"-"`
}

// Resolve picks the transition target for a given error code.
func (o OnErrorSpec) Resolve(code string) (string, bool) {
	if o.Target != "" {
		return o.Target, true
	}
	if o.ByCode == nil {
		return "", false
	}
	if t, ok := o.ByCode[code]; ok {
		return t, true
	}
	if t, ok := o.ByCode["default"]; ok {
		return t, true
	}
	return "", false
}

// IsSet reports whether an on_error handler is configured at all.
func (o OnErrorSpec) IsSet() bool {
	return o.Target != "" || len(o.ByCode) > 0
}

// UnmarshalYAML accepts either `on_error: stateName` or
// `on_error: {default: X, RateLimitError: Y}` (§3, §4.G).
func (o *OnErrorSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var target string
		if err := node.Decode(&target); err != nil {
			return err
		}
		o.Target = target
		return nil
	}
	var byCode map[string]string
	if err := node.Decode(&byCode); err != nil {
		return err
	}
	o.ByCode = byCode
	return nil
}

// Transition is an ordered (condition?, to) pair (§3). An empty Condition is
// equivalent to `true` and always matches.
type Transition struct {
	Condition string `yaml:"condition"`
	To        string `yaml:"to"`
}

// StringOrList unmarshals either a bare YAML scalar or a sequence into a
// []string, matching the spec's "string or string[]" shape for `machine` and
// `launch`.
type StringOrList []string

func (s *StringOrList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var single string
		if err := node.Decode(&single); err != nil {
			return err
		}
		if single != "" {
			*s = []string{single}
		}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*s = list
	return nil
}
