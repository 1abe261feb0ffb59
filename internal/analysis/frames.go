// SPDX-License-Identifier: MIT
package analysis

import "time"

// SpectrumFrame is the per-window spectrum message, in dBFS.
type SpectrumFrame struct {
	Type       string    `json:"type"`
	Sequence   uint64    `json:"sequence"`
	SampleRate float64   `json:"sample_rate"`
	StartHz    float64   `json:"start_hz"` // Frequency of the first bin.
	StepHz     float64   `json:"step_hz"`
	DB         []float64 `json:"db"`
}

func (SpectrumFrame) MessageType() string { return "spectrum" }

func (BandFrame) MessageType() string { return "bands" }

// PeakReport describes the strongest bin of one window.
type PeakReport struct {
	Type        string    `json:"type"`
	Source      string    `json:"source"`
	Sequence    uint64    `json:"sequence"`
	SampleRate  float64   `json:"sample_rate"`
	Bin         int       `json:"bin"`
	FrequencyHz float64   `json:"frequency_hz"`
	LevelDB     float64   `json:"level_db"`
	Timestamp   time.Time `json:"timestamp"`
}

func (PeakReport) MessageType() string { return "peak" }

// Frame returns the latest spectrum as a SpectrumFrame.
func (s *Spectrum) Frame() SpectrumFrame {
	db := make([]float64, s.GetBinCount())
	// Lengths always match.
	_ = s.DecibelsInto(db)

	return SpectrumFrame{
		Type:       "spectrum",
		Sequence:   s.Sequence(),
		SampleRate: s.sampleRate,
		StartHz:    s.GetFrequencyForBin(0),
		StepHz:     s.sampleRate / float64(s.fftSize),
		DB:         db,
	}
}

// PeakReport returns a report for the latest spectrum.
func (s *Spectrum) PeakReport(source string, now time.Time) PeakReport {
	bin, freq, db := s.Peak()
	return PeakReport{
		Type:        "peak",
		Source:      source,
		Sequence:    s.Sequence(),
		SampleRate:  s.sampleRate,
		Bin:         bin,
		FrequencyHz: freq,
		LevelDB:     db,
		Timestamp:   now.UTC(),
	}
}
