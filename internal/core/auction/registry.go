package auction

import (
	"sync"

	"github.com/openclear/auctiond/internal/core/aucterr"
)

// Registry maps keycodes to installed auction-type modules. Modules are
// resolved once at lot creation and the resolved reference is stored on the
// lot, so later registry changes never affect in-flight lots.
type Registry struct {
	mu      sync.RWMutex
	modules map[Keycode]Module
}

func NewRegistry() *Registry {
	return &Registry{modules: make(map[Keycode]Module)}
}

// Install adds a module under its keycode. Reinstalling a keycode is
// rejected; module versioning is out of scope.
func (r *Registry) Install(m Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kc := m.Keycode()
	if _, ok := r.modules[kc]; ok {
		return aucterr.New(aucterr.KindInvalidParams, "registry", "module %q already installed", kc)
	}
	r.modules[kc] = m
	return nil
}

// Resolve returns the module installed under kc.
func (r *Registry) Resolve(kc Keycode) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.modules[kc]
	if !ok {
		return nil, aucterr.New(aucterr.KindInvalidParams, "registry", "no module installed for %q", kc)
	}
	return m, nil
}

// Keycodes lists the installed keycodes.
func (r *Registry) Keycodes() []Keycode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Keycode, 0, len(r.modules))
	for kc := range r.modules {
		out = append(out, kc)
	}
	return out
}
