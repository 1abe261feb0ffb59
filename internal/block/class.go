// SPDX-License-Identifier: MIT
/*
Package block implements a small pull-based processing graph: block classes
are registered by name in a Registry, instantiated into Blocks that own one
output Stream per output port, and drained by consumers through Ports.

A consumer never pushes into a block. Reading from a Port that has caught up
with its stream calls the block's acquire operation, which writes as many
samples as it can into the stream's contiguous region and reports how many
it wrote, or EndOfStream.
*/
package block

import (
	"fmt"
	"sync"
)

// EndOfStream is the acquire return value that ends a session.
const EndOfStream = -1

// DefaultStreamSize is the number of samples buffered per output stream.
const DefaultStreamSize = 4096

// Ctor builds the private state of a new block. It may bind properties on b.
// A non-nil error aborts construction; the constructor must release whatever
// it allocated before returning it.
type Ctor func(b *Block, args any) (state any, err error)

// Dtor releases the private state of a block.
type Dtor func(state any)

// Acquire fills out with fresh samples and returns the number written, or
// EndOfStream. in holds the block's input ports (nil for sources).
type Acquire func(state any, out *Stream, in []*Port) (int, error)

// Class is a block type descriptor.
type Class struct {
	Name    string
	InSize  int // Number of input ports (0 for sources).
	OutSize int // Number of output ports.
	Ctor    Ctor
	Dtor    Dtor
	Acquire Acquire
}

func (c *Class) validate() error {
	switch {
	case c == nil:
		return fmt.Errorf("%w: nil class", ErrRegistration)
	case c.Name == "":
		return fmt.Errorf("%w: class has no name", ErrRegistration)
	case c.Ctor == nil || c.Acquire == nil:
		return fmt.Errorf("%w: class %q is missing operations", ErrRegistration, c.Name)
	case c.InSize < 0 || c.OutSize < 0:
		return fmt.Errorf("%w: class %q has negative port counts", ErrRegistration, c.Name)
	}
	return nil
}

// Registry maps class names to descriptors. The zero value is not usable; use
// NewRegistry or Default.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

// Default is the process-wide registry.
var Default = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]*Class)}
}

// Ensure registers c unless this exact descriptor is already registered.
// Calling it again with the same descriptor is a no-op. A different
// descriptor under an existing name fails with ErrRegistration. A failed call
// leaves the registry unchanged, so the next call tries again.
func (r *Registry) Ensure(c *Class) error {
	if err := c.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.classes[c.Name]; ok {
		if existing == c {
			return nil
		}
		return fmt.Errorf("%w: name %q is taken by another descriptor", ErrRegistration, c.Name)
	}

	r.classes[c.Name] = c
	return nil
}

// Lookup returns the class registered under name.
func (r *Registry) Lookup(name string) (*Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[name]
	return c, ok
}

// Len returns the number of registered classes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.classes)
}

// Option configures a block instance.
type Option func(*options)

type options struct {
	streamSize int
	bind       []func(*Properties) error
}

// WithStreamSize overrides DefaultStreamSize for every output stream.
func WithStreamSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.streamSize = n
		}
	}
}

// WithProperties runs bind on the new block's property set before the
// constructor, so the graph owner can attach its own bindings. A constructor
// binding the same name with another type then fails with ErrPropertyBinding.
func WithProperties(bind func(*Properties) error) Option {
	return func(o *options) {
		if bind != nil {
			o.bind = append(o.bind, bind)
		}
	}
}

// New instantiates the class registered under name.
func (r *Registry) New(name string, args any, opts ...Option) (*Block, error) {
	c, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, name)
	}

	o := options{streamSize: DefaultStreamSize}
	for _, opt := range opts {
		opt(&o)
	}

	b := &Block{
		class: c,
		props: NewProperties(),
		out:   make([]*Stream, c.OutSize),
		in:    make([]*Port, c.InSize),
	}
	for i := range b.out {
		b.out[i] = NewStream(o.streamSize)
	}
	for _, bind := range o.bind {
		if err := bind(b.props); err != nil {
			b.props.clear()
			return nil, fmt.Errorf("%w: %s: %w", ErrPropertyBinding, name, err)
		}
	}

	state, err := c.Ctor(b, args)
	if err != nil {
		b.props.clear()
		return nil, fmt.Errorf("%w: %s: %w", ErrConstruct, name, err)
	}
	b.state = state

	return b, nil
}
