// SPDX-License-Identifier: MIT
package block

import (
	"fmt"
	"sync"
)

// PropertyType is the category of a bound property.
type PropertyType int

const (
	PropertyInteger PropertyType = iota
	PropertyFloat
	PropertyBool
	PropertyObject
)

func (t PropertyType) String() string {
	switch t {
	case PropertyInteger:
		return "integer"
	case PropertyFloat:
		return "float"
	case PropertyBool:
		return "bool"
	case PropertyObject:
		return "object"
	default:
		return "unknown"
	}
}

type property struct {
	typ PropertyType
	get func() any
}

// Properties is a typed, named key/value set attached to a block. Scalar
// properties are bound to accessor functions and read back as copies, so a
// lookup always reflects the owner's current value without handing out a
// pointer into its state. Bindings are dropped when the block closes.
type Properties struct {
	mu    sync.RWMutex
	props map[string]property
}

// NewProperties returns an empty property set.
func NewProperties() *Properties {
	return &Properties{props: make(map[string]property)}
}

func (p *Properties) bind(name string, typ PropertyType, get func() any) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrPropertyBinding)
	}
	if get == nil {
		return fmt.Errorf("%w: %q has no accessor", ErrPropertyBinding, name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.props == nil {
		return fmt.Errorf("%w: %q: %w", ErrPropertyBinding, name, ErrClosed)
	}
	if existing, ok := p.props[name]; ok && existing.typ != typ {
		return fmt.Errorf("%w: %q already bound as %s", ErrPropertyBinding, name, existing.typ)
	}
	p.props[name] = property{typ: typ, get: get}
	return nil
}

func (p *Properties) lookup(name string, typ PropertyType) (any, error) {
	p.mu.RLock()
	prop, ok := p.props[name]
	p.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: no property %q", ErrPropertyLookup, name)
	}
	if prop.typ != typ {
		return nil, fmt.Errorf("%w: %q is %s, not %s", ErrPropertyLookup, name, prop.typ, typ)
	}
	return prop.get(), nil
}

// BindInt binds an integer property.
func (p *Properties) BindInt(name string, get func() int64) error {
	if get == nil {
		return p.bind(name, PropertyInteger, nil)
	}
	return p.bind(name, PropertyInteger, func() any { return get() })
}

// BindFloat binds a float property.
func (p *Properties) BindFloat(name string, get func() float64) error {
	if get == nil {
		return p.bind(name, PropertyFloat, nil)
	}
	return p.bind(name, PropertyFloat, func() any { return get() })
}

// BindBool binds a boolean property.
func (p *Properties) BindBool(name string, get func() bool) error {
	if get == nil {
		return p.bind(name, PropertyBool, nil)
	}
	return p.bind(name, PropertyBool, func() any { return get() })
}

// BindObject binds an opaque object. The object stays reachable through the
// set until the owning block closes.
func (p *Properties) BindObject(name string, v any) error {
	if v == nil {
		return p.bind(name, PropertyObject, nil)
	}
	return p.bind(name, PropertyObject, func() any { return v })
}

// Int returns a copy of an integer property.
func (p *Properties) Int(name string) (int64, error) {
	v, err := p.lookup(name, PropertyInteger)
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Float returns a copy of a float property.
func (p *Properties) Float(name string) (float64, error) {
	v, err := p.lookup(name, PropertyFloat)
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// Bool returns a copy of a boolean property.
func (p *Properties) Bool(name string) (bool, error) {
	v, err := p.lookup(name, PropertyBool)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Object returns an object property.
func (p *Properties) Object(name string) (any, error) {
	return p.lookup(name, PropertyObject)
}

// ObjectAs returns an object property asserted to T.
func ObjectAs[T any](p *Properties, name string) (T, error) {
	var zero T
	v, err := p.Object(name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q holds %T", ErrPropertyLookup, name, v)
	}
	return t, nil
}

// Names returns the bound property names in no particular order.
func (p *Properties) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.props))
	for name := range p.props {
		names = append(names, name)
	}
	return names
}

func (p *Properties) clear() {
	p.mu.Lock()
	p.props = nil
	p.mu.Unlock()
}
