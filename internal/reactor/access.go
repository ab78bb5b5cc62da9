package reactor

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// WriteResult is the structured outcome of one setpoint write entry.
type WriteResult struct {
	Name      string
	Requested float64
	Applied   float64
	Known     bool
	Clamped   bool
}

// Outcome renders the result the way it is reported to callers.
func (w WriteResult) Outcome() string {
	switch {
	case !w.Known:
		return "Error: Unknown parameter " + w.Name
	case w.Clamped:
		return "Success (Clipped from " + FormatValue(w.Requested) + " to " + FormatValue(w.Applied) + ")"
	default:
		return "Success"
	}
}

// Read returns the PV of every requested parameter. The first unknown name
// fails the whole call and nothing is returned.
func (r *Registry) Read(names []string) (map[string]float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	readings := make(map[string]float64, len(names))
	for _, name := range names {
		p, ok := r.params[name]
		if !ok {
			return nil, &UnknownParameterError{Name: name}
		}
		readings[name] = p.pv
	}
	return readings, nil
}

// Write sets setpoints and returns a per-entry outcome string. It never
// fails as a whole: unknown names are reported in their own entry.
func (r *Registry) Write(values map[string]float64) map[string]string {
	results := r.WriteDetailed(values)
	out := make(map[string]string, len(results))
	for _, res := range results {
		out[res.Name] = res.Outcome()
	}
	return out
}

// WriteDetailed is Write with structured results, one per input entry.
// Out-of-bounds requests are clamped into [Min, Max] rather than rejected.
func (r *Registry) WriteDetailed(values map[string]float64) []WriteResult {
	results := make([]WriteResult, 0, len(values))

	r.mu.Lock()
	defer r.mu.Unlock()

	for name, value := range values {
		p, ok := r.params[name]
		if !ok {
			results = append(results, WriteResult{Name: name, Requested: value})
			continue
		}
		applied := math.Max(p.spec.Min, math.Min(p.spec.Max, value))
		if math.IsNaN(value) {
			applied = p.spec.Max
		}
		p.sp = applied
		results = append(results, WriteResult{
			Name:      name,
			Requested: value,
			Applied:   applied,
			Known:     true,
			Clamped:   applied != value,
		})
	}
	return results
}

// FormatValue renders a float the way operators expect to see it in
// outcome messages: integral values keep a trailing ".0".
func FormatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return s
	}
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// ParseAssignments turns "Name=value" arguments into a setpoint map. Names
// are not checked against any registry.
func ParseAssignments(args []string) (map[string]float64, error) {
	values := make(map[string]float64, len(args))
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid assignment %q: want Name=value", arg)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", name, err)
		}
		values[name] = v
	}
	return values, nil
}
