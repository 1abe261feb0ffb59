// SPDX-License-Identifier: MIT
package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigscope/internal/source"
	"sigscope/internal/testutil"
)

// runSource drives a source over values until it is exhausted.
func runSource(t *testing.T, path string, size int, rate int, obs ...source.Observer) {
	t.Helper()

	params := source.NewParams(path)
	params.WindowSize = size
	params.SampleRate = rate
	params.Taper = source.Rectangular
	params.Observers = obs

	src, err := source.Open(params)
	require.NoError(t, err)
	defer src.Close()

	buf := make([]complex128, size)
	for {
		if _, ok := src.Deliver(buf); !ok {
			return
		}
	}
}

func TestSpectrumPeakIQ(t *testing.T) {
	const (
		size = 64
		rate = 6400
	)
	tests := []struct {
		name string
		freq float64
	}{
		{"positive", 800},
		{"negative", -1200},
		{"dc", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.WriteRaw(t, "tone.raw", testutil.Tone(size, rate, tt.freq, 0.5))

			sp, err := NewSpectrum(size, rate, true)
			require.NoError(t, err)
			assert.Zero(t, sp.Sequence())

			runSource(t, path, size, rate, sp)

			assert.Equal(t, uint64(1), sp.Sequence())
			bin, freq, db := sp.Peak()
			assert.InDelta(t, tt.freq, freq, 1e-9)
			assert.Equal(t, testutil.PeakBin(sp.GetMagnitudes()), bin)
			assert.InDelta(t, ToDB(0.5), db, 1e-3, "rectangular taper keeps the tone amplitude")
		})
	}
}

func TestSpectrumRealHalf(t *testing.T) {
	sp, err := NewSpectrum(8, 8000, false)
	require.NoError(t, err)

	assert.Equal(t, 5, sp.GetBinCount())
	assert.Equal(t, 8, sp.GetFFTSize())
	assert.Equal(t, 8000.0, sp.GetSampleRate())
	assert.Equal(t, 0.0, sp.GetFrequencyForBin(0))
	assert.Equal(t, 4000.0, sp.GetFrequencyForBin(4))
	assert.Equal(t, 0.0, sp.GetFrequencyForBin(5))

	path := testutil.WriteWAV(t, "dc.wav", 8000, 16, 1, []int{16384, 16384, 16384, 16384, 16384, 16384, 16384, 16384})
	runSource(t, path, 8, 0, sp)

	mags := sp.GetMagnitudes()
	assert.InDelta(t, 0.5, mags[0], 1e-9)
	for _, m := range mags[1:] {
		assert.InDelta(t, 0, m, 1e-9)
	}
}

func TestSpectrumIQFrequencies(t *testing.T) {
	sp, err := NewSpectrum(4, 400, true)
	require.NoError(t, err)

	want := []float64{-200, -100, 0, 100}
	for i, f := range want {
		assert.Equal(t, f, sp.GetFrequencyForBin(i))
	}
}

func TestSpectrumIgnoresOtherSizes(t *testing.T) {
	sp, err := NewSpectrum(16, 6400, true)
	require.NoError(t, err)

	path := testutil.WriteRaw(t, "tone.raw", testutil.Tone(8, 6400, 800, 1))
	runSource(t, path, 8, 6400, sp)

	assert.Zero(t, sp.Sequence())
}

func TestGetMagnitudesInto(t *testing.T) {
	sp, err := NewSpectrum(8, 8000, true)
	require.NoError(t, err)

	assert.ErrorIs(t, sp.GetMagnitudesInto(make([]float64, 3)), ErrSizeMismatch)
	assert.NoError(t, sp.GetMagnitudesInto(make([]float64, 8)))

	db := make([]float64, 8)
	require.NoError(t, sp.DecibelsInto(db))
	for _, v := range db {
		assert.Equal(t, floorDB, v)
	}

	allocs := testing.AllocsPerRun(100, func() {
		_ = sp.GetMagnitudesInto(db)
	})
	assert.Zero(t, allocs)
}

func TestNewSpectrumErrors(t *testing.T) {
	_, err := NewSpectrum(0, 8000, false)
	assert.Error(t, err)
	_, err = NewSpectrum(8, 0, false)
	assert.Error(t, err)
}

func TestToDB(t *testing.T) {
	assert.Equal(t, 0.0, ToDB(1))
	assert.InDelta(t, -20, ToDB(0.1), 1e-12)
	assert.Equal(t, floorDB, ToDB(0))
	assert.Equal(t, floorDB, ToDB(-1))
}

func TestFrameAndPeakReport(t *testing.T) {
	const (
		size = 16
		rate = 1600
	)
	path := testutil.WriteRaw(t, "tone.raw", testutil.Tone(size, rate, 300, 1))
	sp, err := NewSpectrum(size, rate, true)
	require.NoError(t, err)
	runSource(t, path, size, rate, sp)

	frame := sp.Frame()
	assert.Equal(t, "spectrum", frame.MessageType())
	assert.Equal(t, uint64(1), frame.Sequence)
	assert.Equal(t, -800.0, frame.StartHz)
	assert.Equal(t, 100.0, frame.StepHz)
	require.Len(t, frame.DB, size)
	assert.InDelta(t, 0, frame.DB[11], 1e-3)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rep := sp.PeakReport("tone.raw", now)
	assert.Equal(t, "peak", rep.MessageType())
	assert.Equal(t, 11, rep.Bin)
	assert.Equal(t, 300.0, rep.FrequencyHz)
	assert.InDelta(t, 0, rep.LevelDB, 1e-3)
	assert.Equal(t, now, rep.Timestamp)
	assert.Equal(t, "tone.raw", rep.Source)
}
