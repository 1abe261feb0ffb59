// SPDX-License-Identifier: MIT
/*
Package source implements the windowed acquisition source: it reads frames
from a WAV container or a raw I/Q capture, assembles fixed-size complex
windows, and once a window has been fully delivered downstream it tapers a
copy of it, transforms it, and notifies observers.

A Source moves through four states per window:

	EMPTY -> ACQUIRING -> READY -> DRAINING -> EMPTY

avail counts the assembled samples not yet delivered. It is set to the
window size when assembly succeeds and only decreases afterwards; reaching 0
triggers the transform. A failed read ends the session for good.
*/
package source

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/dsp/fourier"

	applog "sigscope/internal/log"
)

// State is the acquisition state of a Source.
type State int

const (
	StateEmpty State = iota
	StateAcquiring
	StateReady
	StateDraining
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateAcquiring:
		return "acquiring"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stats are cumulative counters for one session.
type Stats struct {
	Windows   uint64 // Windows assembled.
	Delivered uint64 // Samples handed downstream.
	Reads     uint64 // Successful frame reads.
}

// Source is a live acquisition session over one file. It is not safe for
// concurrent use.
type Source struct {
	params     Params
	reader     FrameReader
	paired     bool
	sampleRate int

	staging  []float64    // One read worth of items.
	window   []complex128 // Assembled samples, never tapered.
	taper    []complex128 // Tapered copy fed to the transform.
	spectrum []complex128 // Transform output.
	coeffs   []float64    // Taper coefficients.
	plan     *fourier.CmplxFFT

	avail  int
	state  State
	seq    uint64
	live   bool // Set while observers run.
	stats  Stats
	closed bool

	log *zap.SugaredLogger
}

// Open validates params, opens the input and allocates every buffer. On
// failure everything allocated so far is released.
func Open(params Params) (*Source, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	reader, err := openReader(params.File, params.Format, params.SampleRate)
	if err != nil {
		return nil, err
	}

	src, err := newSource(params, reader)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// NewFromReader builds a source over an already opened reader, which the
// source then owns. params.File only labels the session.
func NewFromReader(params Params, reader FrameReader) (*Source, error) {
	if err := params.Validate(); err != nil {
		reader.Close()
		return nil, err
	}
	return newSource(params, reader)
}

func newSource(params Params, reader FrameReader) (_ *Source, err error) {
	src := &Source{
		reader: reader,
		log:    applog.Named("source"),
	}
	defer func() {
		if err != nil {
			src.Close()
		}
	}()

	if src.params, err = params.Copy(); err != nil {
		return nil, err
	}

	channels := reader.Channels()
	switch {
	case channels == 1 && params.Format != FormatStereo && params.Format != FormatRawIQ:
		src.paired = false
	case channels == 2 && params.Format != FormatMono:
		src.paired = true
	default:
		return nil, fmt.Errorf("%w: %s format with %d channels in %s",
			ErrInvalidConfiguration, params.Format, channels, params.File)
	}
	if src.paired && params.WindowSize%2 != 0 {
		return nil, fmt.Errorf("%w: window size must be even for I/Q frames, got %d",
			ErrInvalidConfiguration, params.WindowSize)
	}

	src.sampleRate = reader.SampleRate()
	if params.Format == FormatRawIQ {
		src.sampleRate = params.SampleRate
	}
	if src.sampleRate <= 0 {
		return nil, fmt.Errorf("%w: no sample rate for %s", ErrInvalidConfiguration, params.File)
	}

	n := params.WindowSize
	src.staging = make([]float64, n)
	src.window = make([]complex128, n)
	src.taper = make([]complex128, n)
	src.spectrum = make([]complex128, n)
	src.coeffs = taperCoefficients(params.Taper, n)

	if src.plan, err = newPlan(n); err != nil {
		return nil, err
	}

	src.log.Infof("Opened %s (window %d, %d Hz, %s, taper %s)",
		params.File, n, src.sampleRate, src.Layout(), params.Taper)

	return src, nil
}

func newPlan(n int) (plan *fourier.CmplxFFT, err error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrTransformPlan, n)
	}
	defer func() {
		if r := recover(); r != nil {
			plan, err = nil, fmt.Errorf("%w: size %d: %v", ErrTransformPlan, n, r)
		}
	}()
	return fourier.NewCmplxFFT(n), nil
}

// Close releases the reader, the plan and the buffers, in that order. It is
// safe to call more than once.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.reader != nil {
		err = s.reader.Close()
		s.reader = nil
	}
	s.plan = nil
	s.staging = nil
	s.window = nil
	s.taper = nil
	s.spectrum = nil
	s.coeffs = nil
	s.avail = 0
	s.state = StateExhausted
	s.params.Release()

	return err
}

// read fills the staging buffer with exactly one window worth of items.
func (s *Source) read() bool {
	n, err := s.reader.ReadItems(s.staging)
	if n != len(s.staging) {
		s.log.Debugf("Short read on %s: %d of %d items (%v)", s.params.File, n, len(s.staging), err)
		return false
	}
	s.stats.Reads++
	return true
}

// assemble fills the window from scratch. Mono frames become complex samples
// with a zero imaginary part. Paired frames take two reads, each filling half
// the window. Any failed read discards what was read so far and exhausts the
// source.
func (s *Source) assemble() bool {
	if s.closed || s.state == StateExhausted {
		return false
	}

	s.state = StateAcquiring

	if !s.read() {
		s.exhaust()
		return false
	}

	if !s.paired {
		for i, v := range s.staging {
			s.window[i] = complex(v, 0)
		}
	} else {
		half := len(s.window) / 2
		Deinterleave(s.window[:half], s.staging)

		if !s.read() {
			s.exhaust()
			return false
		}
		Deinterleave(s.window[half:], s.staging)
	}

	s.avail = len(s.window)
	s.state = StateReady
	s.stats.Windows++
	return true
}

func (s *Source) exhaust() {
	s.avail = 0
	s.state = StateExhausted
	s.log.Debugf("End of stream on %s after %d windows", s.params.File, s.stats.Windows)
}

// pending returns the undelivered part of the current window.
func (s *Source) pending() []complex128 {
	return s.window[len(s.window)-s.avail:]
}

// consume marks n samples as delivered and completes the window when it is
// drained.
func (s *Source) consume(n int) {
	if n == 0 {
		return
	}
	s.avail -= n
	s.stats.Delivered += uint64(n)
	if s.avail > 0 {
		s.state = StateDraining
		return
	}
	s.complete()
}

// Deliver copies up to len(dst) samples of the current window into dst,
// assembling a new window first when the previous one was drained. It
// returns false once the input is exhausted, without writing to dst.
func (s *Source) Deliver(dst []complex128) (int, bool) {
	if s.avail == 0 && !s.assemble() {
		return 0, false
	}
	n := copy(dst, s.pending())
	s.consume(n)
	return n, true
}

// SampleRate returns the effective sample rate in Hz.
func (s *Source) SampleRate() int { return s.sampleRate }

// WindowSize returns the number of complex samples per window.
func (s *Source) WindowSize() int { return s.params.WindowSize }

// Avail returns the number of assembled samples not yet delivered.
func (s *Source) Avail() int { return s.avail }

// State returns the acquisition state.
func (s *Source) State() State { return s.state }

// EOS reports whether the input is exhausted.
func (s *Source) EOS() bool { return s.state == StateExhausted }

// Sequence returns the number of completed windows.
func (s *Source) Sequence() uint64 { return s.seq }

// Stats returns a copy of the session counters.
func (s *Source) Stats() Stats { return s.stats }

// File returns the input path.
func (s *Source) File() string { return s.params.File }

// Layout describes how frames map to samples.
func (s *Source) Layout() string {
	if s.paired {
		return "iq"
	}
	return "real"
}

// Frequency returns the frequency in Hz of transform bin i, in the signed
// range [-rate/2, rate/2).
func (s *Source) Frequency(i int) float64 {
	if s.plan == nil || i < 0 || i >= s.params.WindowSize {
		return 0
	}
	return s.plan.Freq(i) * float64(s.sampleRate)
}
