// SPDX-License-Identifier: MIT
package engine

import (
	"math"
	"math/cmplx"

	"sigscope/internal/source"
)

// Gate tracks whether recent windows carried signal. A window whose peak
// sample magnitude exceeds the threshold opens the gate; it closes again
// after hold quiet windows.
type Gate struct {
	enabled   bool
	threshold float64 // Linear magnitude, 0-1.
	hold      int

	open      bool
	remaining int
	peak      float64 // Peak of the last window.
}

var _ source.Observer = (*Gate)(nil)

// NewGate returns a disabled gate with the threshold given in dBFS.
func NewGate(levelDB float64, hold int) *Gate {
	g := &Gate{hold: max(hold, 0)}
	g.SetGateThreshold(math.Pow(10, levelDB/20))
	return g
}

func (g *Gate) EnableGate() {
	g.enabled = true
}

func (g *Gate) DisableGate() {
	g.enabled = false
}

// SetGateThreshold adjusts the gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (g *Gate) SetGateThreshold(threshold float64) {
	if threshold < 0.0 {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}
	g.threshold = threshold
}

// GetGateThreshold returns the current threshold in the range 0.0-1.0.
func (g *Gate) GetGateThreshold() float64 {
	return g.threshold
}

// OnWindowReady measures the window's peak magnitude and updates the gate.
func (g *Gate) OnWindowReady(w source.Window) {
	var peak float64
	for i := range w.Len() {
		if a := cmplx.Abs(w.Sample(i)); a > peak {
			peak = a
		}
	}
	g.peak = peak

	switch {
	case peak > g.threshold:
		g.open = true
		g.remaining = g.hold
	case g.remaining > 0:
		g.remaining--
	default:
		g.open = false
	}
}

// Open reports whether results of the last window should be published. A
// disabled gate is always open.
func (g *Gate) Open() bool {
	return !g.enabled || g.open
}

// Peak returns the peak magnitude of the last window.
func (g *Gate) Peak() float64 {
	return g.peak
}
