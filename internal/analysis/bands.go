// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"

	applog "sigscope/internal/log"
	"sigscope/internal/transport"
)

// Band is the mean power of a contiguous range of spectrum bins.
type Band struct {
	LowHz  float64 `json:"low_hz"`
	HighHz float64 `json:"high_hz"`
	Power  float64 `json:"power"` // Mean squared magnitude.
	DB     float64 `json:"db"`

	first, last int // Bin range, inclusive.
}

// BandFrame is the message published for every analysed window.
type BandFrame struct {
	Type     string `json:"type"`
	Sequence uint64 `json:"sequence"`
	Bands    []Band `json:"bands"`
}

// BandPower splits the provider's bins into equal-width bands and measures
// the power in each.
type BandPower struct {
	provider FFTResultProvider
	bands    []Band
	mags     []float64
}

// NewBandPower creates count bands over all bins of provider. count is capped
// at the number of bins.
func NewBandPower(provider FFTResultProvider, count int) (*BandPower, error) {
	if provider == nil {
		return nil, fmt.Errorf("band power requires a non-nil FFTResultProvider")
	}
	bins := provider.GetBinCount()
	if count <= 0 {
		return nil, fmt.Errorf("band count must be positive, got %d", count)
	}
	if count > bins {
		count = bins
	}

	res := provider.GetSampleRate() / float64(provider.GetFFTSize())
	bands := make([]Band, count)
	for i := range bands {
		first := i * bins / count
		last := (i+1)*bins/count - 1
		bands[i] = Band{
			LowHz:  provider.GetFrequencyForBin(first) - res/2,
			HighHz: provider.GetFrequencyForBin(last) + res/2,
			first:  first,
			last:   last,
		}
	}

	applog.Debugf("Analysis: Initializing BandPower with %d bands over %d bins.", count, bins)

	return &BandPower{
		provider: provider,
		bands:    bands,
		mags:     make([]float64, bins),
	}, nil
}

// Compute refreshes the band powers from the provider's latest spectrum and
// returns them. The returned slice is reused by the next call.
func (p *BandPower) Compute() ([]Band, error) {
	if err := p.provider.GetMagnitudesInto(p.mags); err != nil {
		return nil, err
	}

	for i := range p.bands {
		b := &p.bands[i]
		sum := 0.0
		for _, m := range p.mags[b.first : b.last+1] {
			sum += m * m
		}
		b.Power = sum / float64(b.last-b.first+1)
		b.DB = powerDB(b.Power)
	}
	return p.bands, nil
}

// Process computes the bands and sends a copy as a BandFrame.
func (p *BandPower) Process(t transport.Transport, seq uint64) {
	if t == nil {
		return
	}
	bands, err := p.Compute()
	if err != nil {
		applog.Errorf("BandPower: Error computing bands: %v", err)
		return
	}

	frame := BandFrame{Type: "bands", Sequence: seq, Bands: make([]Band, len(bands))}
	copy(frame.Bands, bands)

	if err := t.Send(frame); err != nil {
		applog.Warnf("BandPower: Error sending band data: %v", err)
	}
}

// Len returns the number of bands.
func (p *BandPower) Len() int {
	return len(p.bands)
}

func powerDB(power float64) float64 {
	if power <= 0 {
		return floorDB
	}
	return math.Max(10*math.Log10(power), floorDB)
}
