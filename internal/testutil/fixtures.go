// SPDX-License-Identifier: MIT
// Package testutil writes sample files and generates test signals.
package testutil

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV writes integer PCM samples (interleaved when channels > 1) to a
// new WAV file in a temp dir and returns its path.
func WriteWAV(t testing.TB, name string, rate, bitDepth, channels int, samples []int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, rate, bitDepth, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder %s: %v", path, err)
	}
	return path
}

// WriteRaw writes values as little-endian float32 to a new file in a temp
// dir and returns its path.
func WriteRaw(t testing.TB, name string, values []float32) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// Tone returns n interleaved I/Q values of a complex exponential at freq Hz.
func Tone(n int, rate, freq, amplitude float64) []float32 {
	out := make([]float32, 2*n)
	for i := range n {
		phase := 2 * math.Pi * freq * float64(i) / rate
		out[2*i] = float32(amplitude * math.Cos(phase))
		out[2*i+1] = float32(amplitude * math.Sin(phase))
	}
	return out
}

// Ramp returns the integers 1..n, handy for checking sample order.
func Ramp(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// PeakBin returns the index of the largest value in mags.
func PeakBin(mags []float64) int {
	peak := 0
	for i, m := range mags {
		if m > mags[peak] {
			peak = i
		}
	}
	return peak
}
