// SPDX-License-Identifier: MIT
package source

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/cmplx"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"sigscope/internal/block"
	"sigscope/internal/testutil"
)

// sliceReader serves items from memory.
type sliceReader struct {
	items    []float64
	channels int
	rate     int
	pos      int
	reads    int
	closed   bool
}

func (r *sliceReader) ReadItems(dst []float64) (int, error) {
	r.reads++
	n := copy(dst, r.items[r.pos:])
	r.pos += n
	if n < len(dst) {
		return n, io.EOF
	}
	return n, nil
}

func (r *sliceReader) Channels() int   { return r.channels }
func (r *sliceReader) SampleRate() int { return r.rate }
func (r *sliceReader) Close() error    { r.closed = true; return nil }

// windowLog records every window an observer sees.
type windowLog struct {
	samples  [][]complex128
	spectra  [][]complex128
	sequence []uint64
}

func (l *windowLog) OnWindowReady(w Window) {
	s := make([]complex128, w.Len())
	w.CopySamples(s)
	f := make([]complex128, w.Len())
	w.CopySpectrum(f)
	l.samples = append(l.samples, s)
	l.spectra = append(l.spectra, f)
	l.sequence = append(l.sequence, w.Sequence())
}

func newMemSource(t *testing.T, format SampleFormat, channels, window int, items []float64, obs ...Observer) (*Source, *sliceReader) {
	t.Helper()
	r := &sliceReader{items: items, channels: channels, rate: 8000}
	src, err := NewFromReader(Params{
		File:       "mem",
		WindowSize: window,
		Format:     format,
		SampleRate: 8000,
		Observers:  obs,
	}, r)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })
	return src, r
}

func drain(t *testing.T, src *Source, out *block.Stream) []complex128 {
	t.Helper()
	start := out.Tell()
	n, err := acquire(src, out, nil)
	require.NoError(t, err)
	require.NotEqual(t, block.EndOfStream, n)
	got := make([]complex128, n)
	m, err := out.Read(start, got)
	require.NoError(t, err)
	require.Equal(t, n, m)
	return got
}

func TestMonoWindowsInReadOrder(t *testing.T) {
	log := &windowLog{}
	src, _ := newMemSource(t, FormatAuto, 1, 4, []float64{1, 2, 3, 4, 5, 6, 7, 8}, log)
	out := block.NewStream(4)

	first := drain(t, src, out)
	assert.Equal(t, []complex128{1, 2, 3, 4}, first)
	assert.Len(t, log.samples, 1)

	second := drain(t, src, out)
	assert.Equal(t, []complex128{5, 6, 7, 8}, second)
	assert.Len(t, log.samples, 2)
	assert.Equal(t, []uint64{1, 2}, log.sequence)

	for _, v := range append(first, second...) {
		assert.Zero(t, imag(v))
	}
}

func TestRawIQWindowFollowsReadSequence(t *testing.T) {
	log := &windowLog{}
	src, r := newMemSource(t, FormatRawIQ, 2, 4, []float64{1, 2, 3, 4, 5, 6, 7, 8}, log)
	out := block.NewStream(8)

	got := drain(t, src, out)
	assert.Equal(t, []complex128{1 + 2i, 3 + 4i, 5 + 6i, 7 + 8i}, got)
	assert.Equal(t, 2, r.reads, "paired layout reads the window in two halves")
	require.Len(t, log.samples, 1)
	assert.Equal(t, got, log.samples[0])
}

func TestShortSecondHalfEndsStream(t *testing.T) {
	log := &windowLog{}
	src, _ := newMemSource(t, FormatRawIQ, 2, 4, []float64{1, 2, 3, 4, 5, 6}, log)
	out := block.NewStream(8)

	n, err := acquire(src, out, nil)
	require.NoError(t, err)
	assert.Equal(t, block.EndOfStream, n)
	assert.Zero(t, src.Avail())
	assert.True(t, src.EOS())
	assert.Empty(t, log.samples)
	assert.Zero(t, out.Tell(), "no samples of the partial window may be delivered")
}

func TestEndOfStreamIsSticky(t *testing.T) {
	src, r := newMemSource(t, FormatAuto, 1, 4, []float64{1, 2, 3, 4, 5})
	out := block.NewStream(4)

	drain(t, src, out)
	for range 3 {
		before := out.Tell()
		n, err := acquire(src, out, nil)
		require.NoError(t, err)
		assert.Equal(t, block.EndOfStream, n)
		assert.Equal(t, before, out.Tell())
	}
	assert.Equal(t, 2, r.reads, "no read is attempted once the stream ended")
}

func TestPartialDeliveryDoesNotComplete(t *testing.T) {
	log := &windowLog{}
	src, _ := newMemSource(t, FormatAuto, 1, 4, []float64{1, 2, 3, 4}, log)

	dst := make([]complex128, 3)
	n, ok := src.Deliver(dst)
	require.True(t, ok)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, src.Avail())
	assert.Equal(t, StateDraining, src.State())
	assert.Empty(t, log.samples)

	n, ok = src.Deliver(dst)
	require.True(t, ok)
	assert.Equal(t, 1, n)
	assert.Equal(t, complex128(4), dst[0])
	assert.Len(t, log.samples, 1)
	assert.Equal(t, StateEmpty, src.State())
}

func TestOddWindowRejectedForPairs(t *testing.T) {
	r := &sliceReader{channels: 2, rate: 8000}
	_, err := NewFromReader(Params{File: "mem", WindowSize: 5}, r)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	assert.True(t, r.closed, "reader must be released on failure")

	r = &sliceReader{channels: 2, rate: 8000}
	_, err = NewFromReader(Params{File: "mem", WindowSize: 5, Format: FormatRawIQ, SampleRate: 1}, r)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	assert.True(t, r.closed)
}

func TestChannelMismatch(t *testing.T) {
	r := &sliceReader{channels: 1, rate: 8000}
	_, err := NewFromReader(Params{File: "mem", WindowSize: 4, Format: FormatStereo}, r)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	r = &sliceReader{channels: 6, rate: 8000}
	_, err = NewFromReader(Params{File: "mem", WindowSize: 4}, r)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestObserverSeesRawSamplesAndSpectrum(t *testing.T) {
	const (
		size = 64
		rate = 6400.0
		bin  = 8
	)
	tone := testutil.Tone(size, rate, bin*rate/size, 1)
	items := make([]float64, len(tone))
	for i, v := range tone {
		items[i] = float64(v)
	}

	var stale Window
	var peak int
	var first complex128
	obs := ObserverFunc(func(w Window) {
		stale = w
		first = w.Sample(0)
		mags := make([]float64, w.Len())
		for i := range mags {
			mags[i] = cmplx.Abs(w.Bin(i))
		}
		peak = testutil.PeakBin(mags)
		assert.InDelta(t, bin*rate/size, w.Frequency(peak), 1e-9)
	})

	src, _ := newMemSource(t, FormatRawIQ, 2, size, items, obs)
	buf := make([]complex128, size)
	n, ok := src.Deliver(buf)
	require.True(t, ok)
	require.Equal(t, size, n)

	assert.Equal(t, bin, peak)
	assert.InDelta(t, 1.0, real(first), 1e-6, "observers see the untapered window")
	assert.Zero(t, stale.Len(), "views are invalid after the callback returns")
	assert.Zero(t, stale.CopySamples(buf))
}

func TestAvailNeverIncreasesWhileDraining(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		window := 2 * rapid.IntRange(1, 16).Draw(t, "half")
		count := rapid.IntRange(0, 8*window).Draw(t, "items")
		items := make([]float64, count)
		for i := range items {
			items[i] = float64(i + 1)
		}

		completions := 0
		r := &sliceReader{items: items, channels: 1, rate: 1}
		src, err := NewFromReader(Params{
			File:       "mem",
			WindowSize: window,
			Observers:  []Observer{ObserverFunc(func(Window) { completions++ })},
		}, r)
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		defer src.Close()

		var delivered []complex128
		for {
			before := src.Avail()
			want := rapid.IntRange(1, 2*window).Draw(t, "request")
			dst := make([]complex128, want)
			var n int
			if rapid.Bool().Draw(t, "through block") {
				out := block.NewStream(want)
				got, err := acquire(src, out, nil)
				if err != nil {
					t.Fatalf("acquire: %v", err)
				}
				if got == block.EndOfStream {
					break
				}
				if n, err = out.Read(0, dst); err != nil || n != got {
					t.Fatalf("stream holds %d samples (%v), acquire reported %d", n, err, got)
				}
			} else {
				var ok bool
				if n, ok = src.Deliver(dst); !ok {
					break
				}
			}
			if before > 0 && src.Avail() > before {
				t.Fatalf("avail grew from %d to %d while draining", before, src.Avail())
			}
			if src.Avail() < 0 || src.Avail() > window {
				t.Fatalf("avail %d out of range", src.Avail())
			}
			if n > window {
				t.Fatalf("delivered %d > window %d", n, window)
			}
			delivered = append(delivered, dst[:n]...)
		}

		full := count / window
		if completions != full {
			t.Fatalf("completions = %d, want %d", completions, full)
		}
		if len(delivered) != full*window {
			t.Fatalf("delivered %d samples, want %d", len(delivered), full*window)
		}
		for i, v := range delivered {
			if v != complex(float64(i+1), 0) {
				t.Fatalf("sample %d = %v", i, v)
			}
		}
	})
}

func TestCloseIsIdempotent(t *testing.T) {
	src, r := newMemSource(t, FormatAuto, 1, 4, []float64{1, 2, 3, 4})
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	assert.True(t, r.closed)

	_, ok := src.Deliver(make([]complex128, 4))
	assert.False(t, ok)
}

func TestOpenWAV(t *testing.T) {
	path := testutil.WriteWAV(t, "mono.wav", 8000, 16, 1, testutil.Ramp(10))

	src, err := Open(Params{File: path, WindowSize: 4})
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, 8000, src.SampleRate())
	assert.Equal(t, "real", src.Layout())

	buf := make([]complex128, 4)
	n, ok := src.Deliver(buf)
	require.True(t, ok)
	require.Equal(t, 4, n)
	for i, v := range buf {
		assert.InDelta(t, float64(i+1)/32768, real(v), 1e-12)
		assert.Zero(t, imag(v))
	}
}

func TestOpenStereoWAVAsIQ(t *testing.T) {
	path := testutil.WriteWAV(t, "iq.wav", 48000, 16, 2, testutil.Ramp(8))

	src, err := Open(Params{File: path, WindowSize: 4})
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, "iq", src.Layout())

	buf := make([]complex128, 4)
	n, ok := src.Deliver(buf)
	require.True(t, ok)
	require.Equal(t, 4, n)
	for k, v := range buf {
		assert.InDelta(t, float64(2*k+1)/32768, real(v), 1e-12)
		assert.InDelta(t, float64(2*k+2)/32768, imag(v), 1e-12)
	}
}

func TestOpenRaw(t *testing.T) {
	path := testutil.WriteRaw(t, "capture.raw", []float32{1, 2, 3, 4, 5, 6, 7, 8})

	params := NewParams(path)
	params.WindowSize = 4
	src, err := Open(params)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, DefaultRawSampleRate, src.SampleRate())

	buf := make([]complex128, 4)
	n, ok := src.Deliver(buf)
	require.True(t, ok)
	assert.Equal(t, 4, n)
	assert.Equal(t, []complex128{1 + 2i, 3 + 4i, 5 + 6i, 7 + 8i}, buf)

	_, ok = src.Deliver(buf)
	assert.False(t, ok)
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(Params{File: "/nonexistent/input.wav", WindowSize: 4})
	assert.ErrorIs(t, err, ErrFileOpen)

	notWav := testutil.WriteRaw(t, "noise.bin", []float32{1, 2, 3})
	_, err = Open(Params{File: notWav, WindowSize: 4})
	assert.ErrorIs(t, err, ErrFileOpen)

	_, err = Open(Params{File: notWav, WindowSize: 0})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	for _, bits := range []int{12, 20} {
		_, err = Open(Params{File: writePCMHeader(t, bits), WindowSize: 4})
		assert.ErrorIs(t, err, ErrFileOpen, "%d-bit WAV", bits)
	}
}

// writePCMHeader writes a mono 8 kHz PCM WAV declaring the given bit depth,
// followed by a few bytes of data.
func writePCMHeader(t *testing.T, bits int) string {
	t.Helper()

	const rate, channels = 8000, 1
	blockAlign := channels * ((bits + 7) / 8)
	data := make([]byte, 4*blockAlign)

	var b bytes.Buffer
	le := binary.LittleEndian
	b.WriteString("RIFF")
	binary.Write(&b, le, uint32(36+len(data)))
	b.WriteString("WAVEfmt ")
	binary.Write(&b, le, uint32(16))
	binary.Write(&b, le, uint16(1)) // PCM
	binary.Write(&b, le, uint16(channels))
	binary.Write(&b, le, uint32(rate))
	binary.Write(&b, le, uint32(rate*blockAlign))
	binary.Write(&b, le, uint16(blockAlign))
	binary.Write(&b, le, uint16(bits))
	b.WriteString("data")
	binary.Write(&b, le, uint32(len(data)))
	b.Write(data)

	path := filepath.Join(t.TempDir(), fmt.Sprintf("pcm%d.wav", bits))
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))
	return path
}

func TestNewPlanRejectsEmptyWindow(t *testing.T) {
	_, err := newPlan(0)
	assert.ErrorIs(t, err, ErrTransformPlan)
}
