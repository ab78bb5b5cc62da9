// Package reactor holds the bioreactor's parameter registry: the fixed set
// of controllable parameters, their live PV/SP state, and the read/write
// operations external callers use against it.
package reactor

import (
	"fmt"
	"sync"

	"github.com/fentz26/bioreactor/internal/models"
)

// Spec is the immutable definition of one controllable parameter.
type Spec struct {
	Name    string
	Initial float64 // starting value for both PV and SP
	Min     float64 // inclusive setpoint bounds
	Max     float64
	Rate    float64 // relaxation rate toward SP per tick
}

// DefaultSpecs returns the stock bioreactor parameter table.
func DefaultSpecs() []Spec {
	return []Spec{
		{Name: "Temp", Initial: 37.0, Min: 25.0, Max: 45.0, Rate: 0.1},
		{Name: "pH", Initial: 7.0, Min: 6.0, Max: 8.0, Rate: 0.05},
		{Name: "DO", Initial: 60.0, Min: 0.0, Max: 100.0, Rate: 0.5},
		{Name: "Agit", Initial: 300, Min: 50, Max: 800, Rate: 10},
		{Name: "Air", Initial: 1.0, Min: 0.1, Max: 5.0, Rate: 0.2},
		{Name: "FeedA", Initial: 0.0, Min: 0.0, Max: 10.0, Rate: 1.0},
		{Name: "FeedB", Initial: 0.0, Min: 0.0, Max: 10.0, Rate: 1.0},
	}
}

type parameter struct {
	spec Spec
	pv   float64
	sp   float64
}

// Registry is the single shared process state. All PV/SP access goes
// through its lock, so a reader never sees half of an update.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	params map[string]*parameter
}

// NewRegistry validates specs and builds a registry with PV = SP = Initial.
func NewRegistry(specs []Spec) (*Registry, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("registry needs at least one parameter")
	}

	r := &Registry{
		order:  make([]string, 0, len(specs)),
		params: make(map[string]*parameter, len(specs)),
	}
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("parameter name must not be empty")
		}
		if _, dup := r.params[s.Name]; dup {
			return nil, fmt.Errorf("duplicate parameter %q", s.Name)
		}
		if s.Min > s.Max {
			return nil, fmt.Errorf("parameter %s: min %v exceeds max %v", s.Name, s.Min, s.Max)
		}
		if s.Initial < s.Min || s.Initial > s.Max {
			return nil, fmt.Errorf("parameter %s: initial %v outside [%v, %v]", s.Name, s.Initial, s.Min, s.Max)
		}
		if s.Rate < 0 {
			return nil, fmt.Errorf("parameter %s: negative rate %v", s.Name, s.Rate)
		}
		r.order = append(r.order, s.Name)
		r.params[s.Name] = &parameter{spec: s, pv: s.Initial, sp: s.Initial}
	}
	return r, nil
}

// NewDefaultRegistry builds a registry from DefaultSpecs.
func NewDefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultSpecs())
	if err != nil {
		// DefaultSpecs is a constant table.
		panic(err)
	}
	return r
}

// Names returns the parameter names in table order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Spec returns the definition of a parameter.
func (r *Registry) Spec(name string) (Spec, bool) {
	p, ok := r.params[name]
	if !ok {
		return Spec{}, false
	}
	return p.spec, true
}

// Has reports whether name is a known parameter.
func (r *Registry) Has(name string) bool {
	_, ok := r.params[name]
	return ok
}

// Snapshot returns every parameter's PV and SP, taken under one lock.
func (r *Registry) Snapshot() map[string]models.ParameterStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]models.ParameterStatus, len(r.params))
	for name, p := range r.params {
		out[name] = models.ParameterStatus{PV: p.pv, SP: p.sp}
	}
	return out
}

// Advance replaces every parameter's PV with next(spec, pv, sp), holding the
// write lock for the whole pass. Parameters are visited in table order.
func (r *Registry) Advance(next func(spec Spec, pv, sp float64) float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		p := r.params[name]
		p.pv = next(p.spec, p.pv, p.sp)
	}
}
