// SPDX-License-Identifier: MIT
package source

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// DefaultWindowSize is the number of complex samples per window.
	DefaultWindowSize = 512

	// MaxWindowSize bounds the buffers a single source may allocate.
	MaxWindowSize = 1 << 22

	// DefaultRawSampleRate is the nominal rate assumed for headerless I/Q.
	DefaultRawSampleRate = 250000

	// RawSuffix marks a headerless float32 I/Q capture.
	RawSuffix = ".raw"
)

// SampleFormat selects how frames are read from the input file.
type SampleFormat int

const (
	// FormatAuto reads a WAV container and takes the layout from its header:
	// one channel is real-valued, two channels are I/Q pairs.
	FormatAuto SampleFormat = iota
	// FormatMono reads a WAV container that must have one channel.
	FormatMono
	// FormatStereo reads a WAV container that must have two channels.
	FormatStereo
	// FormatRawIQ reads headerless little-endian float32 I/Q pairs.
	FormatRawIQ
)

func (f SampleFormat) String() string {
	switch f {
	case FormatAuto:
		return "auto"
	case FormatMono:
		return "mono"
	case FormatStereo:
		return "stereo"
	case FormatRawIQ:
		return "raw"
	default:
		return fmt.Sprintf("SampleFormat(%d)", int(f))
	}
}

// ParseSampleFormat converts a name (case-insensitive) to a SampleFormat.
func ParseSampleFormat(name string) (SampleFormat, error) {
	switch strings.ToLower(name) {
	case "", "auto":
		return FormatAuto, nil
	case "mono":
		return FormatMono, nil
	case "stereo", "iq":
		return FormatStereo, nil
	case "raw", "raw_iq", "rawiq":
		return FormatRawIQ, nil
	default:
		return FormatAuto, fmt.Errorf("%w: unknown sample format %q", ErrInvalidConfiguration, name)
	}
}

// paired reports whether each frame carries a real/imaginary pair.
func (f SampleFormat) paired() bool {
	return f == FormatStereo || f == FormatRawIQ
}

// DetectFormat picks FormatRawIQ for paths carrying the raw suffix and
// FormatAuto for everything else.
func DetectFormat(path string) SampleFormat {
	if strings.EqualFold(filepath.Ext(path), RawSuffix) {
		return FormatRawIQ
	}
	return FormatAuto
}

// Params describes a source. Observers are notified in order once per
// completed window.
type Params struct {
	File       string
	WindowSize int
	Format     SampleFormat
	SampleRate int // Only used with FormatRawIQ.
	Taper      WindowFunc
	Observers  []Observer
}

// NewParams returns parameters for path with the format guessed from its name.
func NewParams(path string) Params {
	p := Params{
		File:       path,
		WindowSize: DefaultWindowSize,
		Format:     DetectFormat(path),
		Taper:      Hann,
	}
	if p.Format == FormatRawIQ {
		p.SampleRate = DefaultRawSampleRate
	}
	return p
}

// Validate checks the parameters without touching the file system.
func (p Params) Validate() error {
	if p.File == "" {
		return fmt.Errorf("%w: no input file", ErrInvalidConfiguration)
	}
	if p.WindowSize <= 0 {
		return fmt.Errorf("%w: window size must be positive, got %d", ErrInvalidConfiguration, p.WindowSize)
	}
	if p.WindowSize > MaxWindowSize {
		return fmt.Errorf("%w: window size %d exceeds %d", ErrAllocation, p.WindowSize, MaxWindowSize)
	}
	if p.Format.paired() && p.WindowSize%2 != 0 {
		return fmt.Errorf("%w: window size must be even for %s frames, got %d",
			ErrInvalidConfiguration, p.Format, p.WindowSize)
	}
	if p.Format == FormatRawIQ && p.SampleRate <= 0 {
		return fmt.Errorf("%w: raw I/Q needs a positive sample rate, got %d", ErrInvalidConfiguration, p.SampleRate)
	}
	if p.Format < FormatAuto || p.Format > FormatRawIQ {
		return fmt.Errorf("%w: unknown sample format %d", ErrInvalidConfiguration, int(p.Format))
	}
	for i, o := range p.Observers {
		if o == nil {
			return fmt.Errorf("%w: observer %d is nil", ErrInvalidConfiguration, i)
		}
	}
	return nil
}

// Copy returns a deep copy owning its own path and observer list. On failure
// the partial copy is released and the zero value is returned.
func (p Params) Copy() (Params, error) {
	var dst Params

	if p.File == "" {
		dst.Release()
		return Params{}, fmt.Errorf("%w: no input file", ErrInvalidConfiguration)
	}
	dst.File = strings.Clone(p.File)
	dst.WindowSize = p.WindowSize
	dst.Format = p.Format
	dst.SampleRate = p.SampleRate
	dst.Taper = p.Taper
	if len(p.Observers) > 0 {
		dst.Observers = make([]Observer, len(p.Observers))
		copy(dst.Observers, p.Observers)
	}

	return dst, nil
}

// Release drops the owned path and observers. It is safe on the zero value
// and on an already released value.
func (p *Params) Release() {
	if p == nil {
		return
	}
	p.File = ""
	p.Observers = nil
}
