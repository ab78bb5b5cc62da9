package simulation

import (
	"sync"

	"github.com/fentz26/bioreactor/internal/models"
)

// History keeps a fixed-size ring of PV samples per parameter.
type History struct {
	mu    sync.RWMutex
	size  int
	rings map[string]*ring
}

type ring struct {
	buf  []float64
	next int
	full bool
}

// NewHistory creates a history for names holding size samples each.
func NewHistory(names []string, size int) *History {
	if size <= 0 {
		size = 1
	}
	h := &History{size: size, rings: make(map[string]*ring, len(names))}
	for _, n := range names {
		h.rings[n] = &ring{buf: make([]float64, size)}
	}
	return h
}

// Record appends the PV of every parameter in snap.
func (h *History) Record(snap map[string]models.ParameterStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for name, st := range snap {
		r, ok := h.rings[name]
		if !ok {
			continue
		}
		r.buf[r.next] = st.PV
		r.next = (r.next + 1) % h.size
		if r.next == 0 {
			r.full = true
		}
	}
}

// Values returns the samples of name, oldest first.
func (h *History) Values(name string) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.rings[name]
	if !ok {
		return nil
	}
	if !r.full {
		out := make([]float64, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]float64, 0, h.size)
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}
