// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	applog "sigscope/internal/log"
	"sigscope/internal/source"
)

// floorDB is reported for bins with no energy.
const floorDB = -240.0

// ErrSizeMismatch is returned when a destination slice has the wrong length.
var ErrSizeMismatch = errors.New("size mismatch")

// Spectrum keeps the magnitude spectrum of the most recent window.
//
// For I/Q input the full transform is kept and reordered so that bin 0 is the
// most negative frequency and frequencies increase with the bin index. For
// real input only the non-negative half (N/2 + 1 bins) is kept, since the
// other half mirrors it.
type Spectrum struct {
	fftSize    int
	sampleRate float64
	iq         bool

	mu        sync.RWMutex // Protects magnitude, seq.
	magnitude []float64    // Linear magnitude normalised by fftSize.
	seq       uint64
}

// Compile-time checks for interface implementations.
var (
	_ WindowProcessor   = (*Spectrum)(nil)
	_ FFTResultProvider = (*Spectrum)(nil)
)

// NewSpectrum returns a spectrum for windows of fftSize samples.
func NewSpectrum(fftSize int, sampleRate float64, iq bool) (*Spectrum, error) {
	if fftSize <= 0 {
		return nil, fmt.Errorf("fft size must be positive, got %d", fftSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}

	bins := fftSize/2 + 1
	if iq {
		bins = fftSize
	}

	applog.Debugf("Analysis: Initializing Spectrum (Size: %d, SampleRate: %.1f Hz, Bins: %d)", fftSize, sampleRate, bins)

	return &Spectrum{
		fftSize:    fftSize,
		sampleRate: sampleRate,
		iq:         iq,
		magnitude:  make([]float64, bins),
	}, nil
}

// OnWindowReady computes magnitudes from the window's transform.
func (s *Spectrum) OnWindowReady(w source.Window) {
	n := w.Len()
	if n != s.fftSize {
		applog.Warnf("Analysis: window of %d samples does not match spectrum size %d", n, s.fftSize)
		return
	}

	norm := 1 / float64(n)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.iq {
		half := n / 2
		for k := range s.magnitude {
			s.magnitude[k] = cmplx.Abs(w.Bin((k+half)%n)) * norm
		}
	} else {
		for k := range s.magnitude {
			s.magnitude[k] = cmplx.Abs(w.Bin(k)) * norm
		}
	}
	s.seq = w.Sequence()
}

// GetMagnitudes returns a copy of the latest magnitudes. It allocates; use
// GetMagnitudesInto on hot paths.
func (s *Spectrum) GetMagnitudes() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]float64, len(s.magnitude))
	copy(out, s.magnitude)
	return out
}

// GetMagnitudesInto copies the latest magnitudes into dst, which must have
// GetBinCount elements.
func (s *Spectrum) GetMagnitudesInto(dst []float64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(dst) != len(s.magnitude) {
		return fmt.Errorf("%w: destination has %d bins, need %d", ErrSizeMismatch, len(dst), len(s.magnitude))
	}
	copy(dst, s.magnitude)
	return nil
}

// GetFrequencyForBin returns the centre frequency (Hz) of bin binIndex, or 0
// for an out of range index.
func (s *Spectrum) GetFrequencyForBin(binIndex int) float64 {
	// Size and rate are immutable after creation.
	if binIndex < 0 || binIndex >= len(s.magnitude) {
		return 0
	}
	res := s.sampleRate / float64(s.fftSize)
	if s.iq {
		return float64(binIndex-s.fftSize/2) * res
	}
	return float64(binIndex) * res
}

func (s *Spectrum) GetBinCount() int       { return len(s.magnitude) }
func (s *Spectrum) GetFFTSize() int        { return s.fftSize }
func (s *Spectrum) GetSampleRate() float64 { return s.sampleRate }

// Sequence returns the sequence number of the window last analysed, 0 before
// the first one.
func (s *Spectrum) Sequence() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Peak returns the strongest bin of the latest spectrum, its frequency and
// its level in dBFS.
func (s *Spectrum) Peak() (bin int, freq, db float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i, m := range s.magnitude {
		if m > s.magnitude[bin] {
			bin = i
		}
	}
	return bin, s.GetFrequencyForBin(bin), ToDB(s.magnitude[bin])
}

// DecibelsInto converts the latest magnitudes to dBFS into dst, which must
// have GetBinCount elements.
func (s *Spectrum) DecibelsInto(dst []float64) error {
	if err := s.GetMagnitudesInto(dst); err != nil {
		return err
	}
	for i, m := range dst {
		dst[i] = ToDB(m)
	}
	return nil
}

// ToDB converts a linear amplitude to decibels, clamped at a floor for
// silence.
func ToDB(amplitude float64) float64 {
	if amplitude <= 0 {
		return floorDB
	}
	return math.Max(20*math.Log10(amplitude), floorDB)
}
