// SPDX-License-Identifier: MIT
package block

import (
	"fmt"
	"io"
)

// Block is a live instance of a Class. Blocks are driven from a single
// goroutine: acquire calls for one block never overlap.
type Block struct {
	class  *Class
	state  any
	props  *Properties
	out    []*Stream
	in     []*Port
	eos    bool
	closed bool
}

// Class returns the descriptor this block was built from.
func (b *Block) Class() *Class {
	return b.class
}

// Properties returns the block's property set.
func (b *Block) Properties() *Properties {
	return b.props
}

// Output returns the stream of output port i.
func (b *Block) Output(i int) (*Stream, error) {
	if i < 0 || i >= len(b.out) {
		return nil, fmt.Errorf("block %q has no output %d", b.class.Name, i)
	}
	return b.out[i], nil
}

// EOS reports whether the block has signalled end-of-stream.
func (b *Block) EOS() bool {
	return b.eos
}

// Acquire runs the class acquire operation on output 0. Once it has returned
// EndOfStream it is not called again.
func (b *Block) Acquire() (int, error) {
	if b.closed {
		return 0, ErrClosed
	}
	if b.eos {
		return EndOfStream, nil
	}
	if len(b.out) == 0 {
		return 0, fmt.Errorf("block %q has no outputs", b.class.Name)
	}

	n, err := b.class.Acquire(b.state, b.out[0], b.in)
	if err != nil {
		return 0, err
	}
	if n == EndOfStream {
		b.eos = true
	}
	return n, nil
}

// Close runs the destructor and drops all property bindings. It is safe to
// call more than once.
func (b *Block) Close() {
	if b.closed {
		return
	}
	b.closed = true
	b.props.clear()
	if b.class.Dtor != nil {
		b.class.Dtor(b.state)
	}
	b.state = nil
}

// Port is a read cursor on one output stream of a block.
type Port struct {
	block  *Block
	stream *Stream
	pos    int64
	eos    bool
}

// Plug returns a port reading output i of b from the current write position.
func Plug(b *Block, i int) (*Port, error) {
	s, err := b.Output(i)
	if err != nil {
		return nil, err
	}
	return &Port{block: b, stream: s, pos: s.Tell()}, nil
}

// Read fills dst with the next samples, acquiring from the block when the
// port has consumed everything buffered. It returns io.EOF once the block
// reached end-of-stream and every buffered sample has been read. A short
// read is normal: at most one acquire happens per call.
func (p *Port) Read(dst []complex128) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}

	n, err := p.stream.Read(p.pos, dst)
	if err == ErrPortDesync {
		p.pos = p.stream.Oldest()
		return 0, ErrPortDesync
	}
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.pos += int64(n)
		return n, nil
	}

	if p.eos || p.block.EOS() {
		p.eos = true
		return 0, io.EOF
	}

	got, err := p.block.Acquire()
	if err != nil {
		return 0, err
	}
	if got == EndOfStream {
		p.eos = true
		return 0, io.EOF
	}

	n, err = p.stream.Read(p.pos, dst)
	if err != nil {
		return 0, err
	}
	p.pos += int64(n)
	return n, nil
}

// Position returns the absolute stream position of the next read.
func (p *Port) Position() int64 {
	return p.pos
}
