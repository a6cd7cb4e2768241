package device

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrDuplicateName = errors.New("duplicate device name")
	ErrDuplicatePin  = errors.New("pin already in use")
	ErrNotFound      = errors.New("device not found")
)

// Registry holds the named inputs and outputs of the process, in the order
// they were added.
type Registry struct {
	mu      sync.RWMutex
	inputs  []*DebouncedInput
	outputs []*Output
	names   map[string]bool
	pins    map[int]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		names: make(map[string]bool),
		pins:  make(map[int]string),
	}
}

func (r *Registry) claim(name string, pin int) error {
	if r.names[name] {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	if owner, ok := r.pins[pin]; ok {
		return fmt.Errorf("%w: pin %d (%s)", ErrDuplicatePin, pin, owner)
	}
	r.names[name] = true
	r.pins[pin] = name
	return nil
}

// AddInput registers an input.
func (r *Registry) AddInput(in *DebouncedInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.claim(in.Name(), in.Pin()); err != nil {
		return err
	}
	r.inputs = append(r.inputs, in)
	return nil
}

// AddOutput registers an output.
func (r *Registry) AddOutput(out *Output) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.claim(out.Name(), out.Pin()); err != nil {
		return err
	}
	r.outputs = append(r.outputs, out)
	return nil
}

// Input looks up an input by name.
func (r *Registry) Input(name string) (*DebouncedInput, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, in := range r.inputs {
		if in.Name() == name {
			return in, true
		}
	}
	return nil, false
}

// Output looks up an output by name.
func (r *Registry) Output(name string) (*Output, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, out := range r.outputs {
		if out.Name() == name {
			return out, true
		}
	}
	return nil, false
}

// Inputs returns all inputs in registration order.
func (r *Registry) Inputs() []*DebouncedInput {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*DebouncedInput(nil), r.inputs...)
}

// Outputs returns all outputs in registration order.
func (r *Registry) Outputs() []*Output {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Output(nil), r.outputs...)
}

// InputNames returns the input names in registration order.
func (r *Registry) InputNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.inputs))
	for i, in := range r.inputs {
		names[i] = in.Name()
	}
	return names
}

// OutputNames returns the output names in registration order.
func (r *Registry) OutputNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.outputs))
	for i, out := range r.outputs {
		names[i] = out.Name()
	}
	return names
}
