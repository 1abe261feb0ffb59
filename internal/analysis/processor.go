// SPDX-License-Identifier: MIT
package analysis

import "sigscope/internal/source"

// WindowProcessor is a source observer that derives data from completed
// windows. Implementations are called on the acquisition goroutine and must
// not block.
type WindowProcessor interface {
	source.Observer
}

// FFTResultProvider exposes the latest magnitude spectrum to readers on other
// goroutines. This decouples consumers (band power, UDP publisher) from the
// concrete spectrum implementation.
type FFTResultProvider interface {
	GetMagnitudes() []float64                // GetMagnitudes returns a copy of the latest magnitude spectrum.
	GetMagnitudesInto(dst []float64) error   // GetMagnitudesInto copies the spectrum into dst without allocating.
	GetFrequencyForBin(binIndex int) float64 // GetFrequencyForBin returns the centre frequency (Hz) of a bin.
	GetBinCount() int                        // GetBinCount returns the number of magnitude bins.
	GetFFTSize() int                         // GetFFTSize returns the transform size.
	GetSampleRate() float64                  // GetSampleRate returns the sample rate in Hz.
}
