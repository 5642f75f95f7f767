package valve

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/thatsimonsguy/mixvalve/internal/model"
)

var (
	ErrUnknownValve   = errors.New("unknown valve")
	ErrDuplicateValve = errors.New("duplicate valve")
)

// Call is a single request against a valve. Stop wins over Toggle, which wins
// over Position. An empty call closes the valve.
type Call struct {
	Stop     bool     `json:"stop,omitempty"`
	Toggle   bool     `json:"toggle,omitempty"`
	Position *float64 `json:"position,omitempty"`
}

// Handle applies a call to the controller.
func (c *Controller) Handle(call Call) {
	switch {
	case call.Stop:
		return
	case call.Toggle:
		if c.State() < 0.5 {
			c.ControlValve(1.0)
		} else {
			c.ControlValve(0.0)
		}
	case call.Position != nil:
		c.ControlValve(*call.Position)
	default:
		c.ControlValve(0.0)
	}
}

type entry struct {
	mu   sync.Mutex
	ctrl *Controller
}

// Registry owns the controllers and serializes operations per valve.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

func (r *Registry) Add(c *Controller) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[c.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateValve, c.Name())
	}
	r.entries[c.Name()] = &entry{ctrl: c}
	return nil
}

// Names returns the registered valve names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Do runs fn with exclusive access to the named controller.
func (r *Registry) Do(name string, fn func(*Controller)) error {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownValve, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.ctrl)
	return nil
}

func (r *Registry) Status(name string) (model.ValveStatus, error) {
	var s model.ValveStatus
	err := r.Do(name, func(c *Controller) {
		s = c.Status()
	})
	return s, err
}

func (r *Registry) Statuses() []model.ValveStatus {
	names := r.Names()
	out := make([]model.ValveStatus, 0, len(names))
	for _, name := range names {
		if s, err := r.Status(name); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// ParkAll parks every registered valve.
func (r *Registry) ParkAll() {
	for _, name := range r.Names() {
		_ = r.Do(name, func(c *Controller) { c.Park() })
	}
}
