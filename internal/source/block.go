// SPDX-License-Identifier: MIT
package source

import (
	"fmt"

	"sigscope/internal/block"
)

// ClassName is the registry name of the file source block.
const ClassName = "file_source"

// Property names bound on every file source block.
const (
	PropSampleRate = "sample_rate"
	PropWindowSize = "window_size"
	PropInstance   = "instance"
)

// Class is the file source block descriptor: no inputs, one output.
var Class = &block.Class{
	Name:    ClassName,
	InSize:  0,
	OutSize: 1,
	Ctor:    construct,
	Dtor:    destruct,
	Acquire: acquire,
}

// open is replaced in tests to observe the sources a block creates.
var open = Open

func construct(b *block.Block, args any) (any, error) {
	params, ok := args.(Params)
	if !ok {
		return nil, fmt.Errorf("%w: expected source.Params, got %T", ErrInvalidConfiguration, args)
	}

	src, err := open(params)
	if err != nil {
		return nil, err
	}

	props := b.Properties()
	if err := props.BindInt(PropSampleRate, func() int64 { return int64(src.SampleRate()) }); err != nil {
		src.Close()
		return nil, err
	}
	if err := props.BindInt(PropWindowSize, func() int64 { return int64(src.WindowSize()) }); err != nil {
		src.Close()
		return nil, err
	}
	if err := props.BindObject(PropInstance, src); err != nil {
		src.Close()
		return nil, err
	}

	return src, nil
}

func destruct(state any) {
	if src, ok := state.(*Source); ok {
		if err := src.Close(); err != nil {
			src.log.Warnf("Closing %s: %v", src.File(), err)
		}
	}
}

// acquire hands the puller as much of the current window as fits in the
// contiguous part of out, assembling a window first if none is pending.
func acquire(state any, out *block.Stream, _ []*block.Port) (int, error) {
	src := state.(*Source)

	n, ok := src.Deliver(out.Contiguous(out.Size()))
	if !ok {
		return block.EndOfStream, nil
	}

	if _, err := out.Advance(n); err != nil {
		return 0, fmt.Errorf("advancing output by %d: %w", n, err)
	}

	return n, nil
}

// NewBlock registers Class in reg if needed and instantiates a file source
// block for params.
func NewBlock(reg *block.Registry, params Params, opts ...block.Option) (*block.Block, error) {
	if err := reg.Ensure(Class); err != nil {
		return nil, fmt.Errorf("cannot register %s block class: %w", ClassName, err)
	}
	return reg.New(ClassName, params, opts...)
}

// Instance returns the Source behind a file source block.
func Instance(b *block.Block) (*Source, error) {
	return block.ObjectAs[*Source](b.Properties(), PropInstance)
}
