// SPDX-License-Identifier: MIT
package source

// Observer is notified once per completed window, after the transform ran.
// Observers must not depend on the order in which they are called.
type Observer interface {
	OnWindowReady(w Window)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(w Window)

func (f ObserverFunc) OnWindowReady(w Window) { f(w) }

// Window is a read-only view of the window that just completed. It is only
// valid during OnWindowReady: afterwards every accessor reports an empty
// window. Use the Copy methods to keep data.
type Window struct {
	src *Source
	seq uint64
}

func (w Window) valid() bool {
	return w.src != nil && w.src.live && w.src.seq == w.seq
}

// Len returns the number of samples, or 0 for a stale view.
func (w Window) Len() int {
	if !w.valid() {
		return 0
	}
	return len(w.src.window)
}

// Sample returns raw sample i, before the taper was applied.
func (w Window) Sample(i int) complex128 {
	if !w.valid() || i < 0 || i >= len(w.src.window) {
		return 0
	}
	return w.src.window[i]
}

// Bin returns transform coefficient i.
func (w Window) Bin(i int) complex128 {
	if !w.valid() || i < 0 || i >= len(w.src.spectrum) {
		return 0
	}
	return w.src.spectrum[i]
}

// CopySamples copies the raw samples into dst and returns the count.
func (w Window) CopySamples(dst []complex128) int {
	if !w.valid() {
		return 0
	}
	return copy(dst, w.src.window)
}

// CopySpectrum copies the transform output into dst and returns the count.
func (w Window) CopySpectrum(dst []complex128) int {
	if !w.valid() {
		return 0
	}
	return copy(dst, w.src.spectrum)
}

// SampleRate returns the sample rate of the window in Hz.
func (w Window) SampleRate() int {
	if w.src == nil {
		return 0
	}
	return w.src.sampleRate
}

// Frequency returns the centre frequency of bin i in Hz.
func (w Window) Frequency(i int) float64 {
	if !w.valid() {
		return 0
	}
	return w.src.Frequency(i)
}

// Sequence returns the 1-based index of this window in the session.
func (w Window) Sequence() uint64 {
	return w.seq
}

// IQ reports whether samples carry independent I and Q components.
func (w Window) IQ() bool {
	return w.src != nil && w.src.paired
}

// complete tapers a copy of the drained window, runs the transform and
// notifies observers. The window buffer is stale afterwards.
func (s *Source) complete() {
	for i, v := range s.window {
		s.taper[i] = v * complex(s.coeffs[i], 0)
	}
	s.plan.Coefficients(s.spectrum, s.taper)

	s.seq++
	s.live = true
	view := Window{src: s, seq: s.seq}
	for _, o := range s.params.Observers {
		o.OnWindowReady(view)
	}
	s.live = false

	s.state = StateEmpty
}
