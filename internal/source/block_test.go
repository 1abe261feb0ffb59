// SPDX-License-Identifier: MIT
package source

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigscope/internal/block"
	"sigscope/internal/testutil"
)

func TestNewBlockRegistersOnce(t *testing.T) {
	reg := block.NewRegistry()
	path := testutil.WriteWAV(t, "mono.wav", 8000, 16, 1, testutil.Ramp(16))

	a, err := NewBlock(reg, Params{File: path, WindowSize: 4})
	require.NoError(t, err)
	defer a.Close()

	b, err := NewBlock(reg, Params{File: path, WindowSize: 8})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, 1, reg.Len())
	assert.Same(t, a.Class(), b.Class())
}

func TestBlockProperties(t *testing.T) {
	reg := block.NewRegistry()
	path := testutil.WriteWAV(t, "mono.wav", 11025, 16, 1, testutil.Ramp(16))

	b, err := NewBlock(reg, Params{File: path, WindowSize: 4})
	require.NoError(t, err)
	defer b.Close()

	rate, err := b.Properties().Int(PropSampleRate)
	require.NoError(t, err)
	assert.Equal(t, int64(11025), rate)

	size, err := b.Properties().Int(PropWindowSize)
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)

	src, err := Instance(b)
	require.NoError(t, err)
	assert.Equal(t, path, src.File())

	_, err = b.Properties().Float(PropSampleRate)
	assert.ErrorIs(t, err, block.ErrPropertyLookup)
}

func TestBlockConstructFailures(t *testing.T) {
	reg := block.NewRegistry()

	_, err := NewBlock(reg, Params{File: "/nonexistent.wav", WindowSize: 4})
	assert.ErrorIs(t, err, block.ErrConstruct)
	assert.ErrorIs(t, err, ErrFileOpen)

	_, err = reg.New(ClassName, "not params")
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestBlockBindingConflictClosesSource(t *testing.T) {
	reg := block.NewRegistry()
	path := testutil.WriteWAV(t, "mono.wav", 8000, 16, 1, testutil.Ramp(16))

	var opened *Source
	open = func(p Params) (*Source, error) {
		src, err := Open(p)
		opened = src
		return src, err
	}
	t.Cleanup(func() { open = Open })

	var owner *block.Properties
	_, err := NewBlock(reg, Params{File: path, WindowSize: 4},
		block.WithProperties(func(p *block.Properties) error {
			owner = p
			return p.BindInt(PropInstance, func() int64 { return 0 })
		}))
	assert.ErrorIs(t, err, block.ErrConstruct)
	assert.ErrorIs(t, err, block.ErrPropertyBinding)

	require.NotNil(t, opened)
	assert.Equal(t, StateExhausted, opened.State())
	require.NotNil(t, owner)
	assert.Empty(t, owner.Names())
}

func TestBlockRegistrationConflict(t *testing.T) {
	reg := block.NewRegistry()
	impostor := *Class
	require.NoError(t, reg.Ensure(&impostor))

	_, err := NewBlock(reg, Params{File: "x.wav", WindowSize: 4})
	assert.ErrorIs(t, err, block.ErrRegistration)
}

func TestPortPullsWholeFile(t *testing.T) {
	const frames = 22
	reg := block.NewRegistry()
	path := testutil.WriteWAV(t, "mono.wav", 8000, 16, 1, testutil.Ramp(frames))

	windows := 0
	b, err := NewBlock(reg, Params{
		File:       path,
		WindowSize: 4,
		Observers:  []Observer{ObserverFunc(func(Window) { windows++ })},
	}, block.WithStreamSize(3))
	require.NoError(t, err)
	defer b.Close()

	port, err := block.Plug(b, 0)
	require.NoError(t, err)

	var got []complex128
	buf := make([]complex128, 5)
	for {
		n, err := port.Read(buf)
		got = append(got, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
	}

	require.Len(t, got, 20)
	for i, v := range got {
		assert.InDelta(t, float64(i+1)/32768, real(v), 1e-12)
	}
	assert.Equal(t, 5, windows)
	assert.True(t, b.EOS())

	src, err := Instance(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), src.Stats().Delivered)
}

func TestClosedBlockDropsInstance(t *testing.T) {
	reg := block.NewRegistry()
	path := testutil.WriteWAV(t, "mono.wav", 8000, 16, 1, testutil.Ramp(8))

	b, err := NewBlock(reg, Params{File: path, WindowSize: 4})
	require.NoError(t, err)
	src, err := Instance(b)
	require.NoError(t, err)

	b.Close()
	assert.Equal(t, StateExhausted, src.State())

	_, err = Instance(b)
	assert.ErrorIs(t, err, block.ErrPropertyLookup)
}
