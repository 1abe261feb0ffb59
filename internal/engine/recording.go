// SPDX-License-Identifier: MIT
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/zap"

	applog "sigscope/internal/log"
	"sigscope/internal/source"
)

// ErrAlreadyRecording is returned by Start while a recording is open.
var ErrAlreadyRecording = errors.New("already recording")

// Recorder writes every completed window to a WAV file: I/Q windows as
// two-channel frames (I left, Q right), real windows as one channel.
type Recorder struct {
	isRecording int32 // Atomic flag.
	outputFile  *os.File
	wavEncoder  *wav.Encoder
	sampleBuf   *audio.IntBuffer
	samples     []complex128
	staging     []float64
	channels    int
	scale       float64
	limit       int
	frames      uint64
	errors      int

	log *zap.SugaredLogger
}

var _ source.Observer = (*Recorder)(nil)

// NewRecorder returns an idle recorder.
func NewRecorder() *Recorder {
	return &Recorder{log: applog.Named("recorder")}
}

// Start creates filename and begins recording. channels is 1 or 2.
func (r *Recorder) Start(filename string, sampleRate, channels, bitDepth int) error {
	if atomic.LoadInt32(&r.isRecording) == 1 {
		return ErrAlreadyRecording
	}
	if channels != 1 && channels != 2 {
		return fmt.Errorf("recorder supports 1 or 2 channels, got %d", channels)
	}
	switch bitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("recorder supports 16, 24 or 32 bits, got %d", bitDepth)
	}

	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	r.outputFile = file

	r.wavEncoder = wav.NewEncoder(file, sampleRate, bitDepth, channels, 1)
	r.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		SourceBitDepth: bitDepth,
	}
	r.channels = channels
	r.limit = 1<<(bitDepth-1) - 1
	r.scale = float64(r.limit)
	r.frames = 0
	r.errors = 0

	atomic.StoreInt32(&r.isRecording, 1)
	r.log.Infof("Recording to %s (%d Hz, %d ch, %d bit)", filename, sampleRate, channels, bitDepth)

	return nil
}

// OnWindowReady appends the raw window to the file.
func (r *Recorder) OnWindowReady(w source.Window) {
	if atomic.LoadInt32(&r.isRecording) == 0 || r.wavEncoder == nil {
		return
	}

	n := w.Len()
	items := n * r.channels
	if cap(r.staging) < items {
		r.staging = make([]float64, items)
	}
	if cap(r.sampleBuf.Data) < items {
		r.sampleBuf.Data = make([]int, items)
	}
	r.staging = r.staging[:items]
	r.sampleBuf.Data = r.sampleBuf.Data[:items]

	if cap(r.samples) < n {
		r.samples = make([]complex128, n)
	}
	samples := r.samples[:n]
	w.CopySamples(samples)

	if r.channels == 2 {
		source.Interleave(r.staging, samples)
	} else {
		for i, v := range samples {
			r.staging[i] = real(v)
		}
	}

	for i, v := range r.staging {
		r.sampleBuf.Data[i] = r.quantize(v)
	}

	if err := r.wavEncoder.Write(r.sampleBuf); err != nil {
		r.errors++
		r.log.Errorf("Error writing to WAV file: %v", err)
		return
	}
	r.frames += uint64(n)
}

func (r *Recorder) quantize(v float64) int {
	s := int(v * r.scale)
	if s > r.limit {
		return r.limit
	}
	if s < -r.limit {
		return -r.limit
	}
	return s
}

// Recording reports whether a file is open.
func (r *Recorder) Recording() bool {
	return atomic.LoadInt32(&r.isRecording) == 1
}

// Frames returns the number of frames written to the current file.
func (r *Recorder) Frames() uint64 {
	return r.frames
}

// Stop finalises the WAV header and closes the file.
func (r *Recorder) Stop() error {
	if atomic.LoadInt32(&r.isRecording) == 0 {
		return nil
	}

	atomic.StoreInt32(&r.isRecording, 0)

	var errs []error
	if r.wavEncoder != nil {
		if err := r.wavEncoder.Close(); err != nil {
			errs = append(errs, err)
		}
		r.wavEncoder = nil
	}

	if r.outputFile != nil {
		name := r.outputFile.Name()
		if err := r.outputFile.Close(); err != nil {
			errs = append(errs, err)
		}
		r.outputFile = nil
		r.log.Infof("Recording saved to %s (%d frames)", name, r.frames)
	}

	return errors.Join(errs...)
}

// RecordingPath returns explicit if set, otherwise a timestamped name in dir
// derived from the input file name.
func RecordingPath(explicit, dir, input string, now time.Time) string {
	if explicit != "" {
		return explicit
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if base == "" || base == "." {
		base = "recording"
	}
	return filepath.Join(dir, base+"-"+now.UTC().Format("20060102-150405")+".wav")
}
