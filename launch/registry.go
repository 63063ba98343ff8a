package launch

import (
	"fmt"
	"sync"

	"github.com/flatagents/flatagents/machine"
)

// Registry resolves a machine reference (a name or a relative/absolute YAML
// path, per §6 "Agents referenced as ./relative/path.yml or inline objects"
// generalized to machine-launch targets) to its parsed machine.Config.
type Registry struct {
	mu    sync.RWMutex
	byRef map[string]*machine.Config
}

func NewRegistry() *Registry {
	return &Registry{byRef: make(map[string]*machine.Config)}
}

func (r *Registry) Register(ref string, cfg *machine.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byRef[ref] = cfg
}

func (r *Registry) Resolve(ref string) (*machine.Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.byRef[ref]
	if !ok {
		return nil, fmt.Errorf("launch: no machine registered for ref %q", ref)
	}
	return cfg, nil
}
