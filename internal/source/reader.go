// SPDX-License-Identifier: MIT
package source

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// FrameReader pulls interleaved items from an input. One item is one channel
// value of one frame, so a stereo frame is two items.
type FrameReader interface {
	// ReadItems fills dst and returns the number of items read. A count
	// below len(dst) means the input is exhausted or failed.
	ReadItems(dst []float64) (int, error)
	Channels() int
	SampleRate() int
	Close() error
}

// openReader opens path according to format. Raw inputs take their rate from
// rawRate since they carry no header.
func openReader(path string, format SampleFormat, rawRate int) (FrameReader, error) {
	if format == FormatRawIQ {
		return openRawReader(path, rawRate)
	}
	return openWavReader(path)
}

// wavReader decodes integer PCM from a WAV container.
type wavReader struct {
	file  *os.File
	dec   *wav.Decoder
	buf   *audio.IntBuffer
	scale float64
	bias  int
}

const wavFormatPCM = 1

func openWavReader(path string) (*wavReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileOpen, err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is not a WAV file", ErrFileOpen, path)
	}
	if err := dec.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: seeking to PCM data: %w", ErrFileOpen, path, err)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		f.Close()
		return nil, fmt.Errorf("%w: %s: unsupported WAV encoding %d", ErrFileOpen, path, dec.WavAudioFormat)
	}
	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		f.Close()
		return nil, fmt.Errorf("%w: %s: unsupported bit depth %d", ErrFileOpen, path, dec.BitDepth)
	}

	r := &wavReader{
		file: f,
		dec:  dec,
		buf: &audio.IntBuffer{
			Format:         dec.Format(),
			SourceBitDepth: int(dec.BitDepth),
		},
		scale: 1 / float64(uint64(1)<<(dec.BitDepth-1)),
	}
	// 8-bit WAV samples are unsigned.
	if dec.BitDepth == 8 {
		r.bias = 128
	}
	return r, nil
}

func (r *wavReader) ReadItems(dst []float64) (int, error) {
	if cap(r.buf.Data) < len(dst) {
		r.buf.Data = make([]int, len(dst))
	}

	total := 0
	for total < len(dst) {
		r.buf.Data = r.buf.Data[:len(dst)-total]
		n, err := r.dec.PCMBuffer(r.buf)
		for i, v := range r.buf.Data[:n] {
			dst[total+i] = float64(v-r.bias) * r.scale
		}
		total += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, io.EOF
			}
			return total, err
		}
		if n == 0 {
			return total, io.EOF
		}
	}
	return total, nil
}

func (r *wavReader) Channels() int   { return int(r.dec.NumChans) }
func (r *wavReader) SampleRate() int { return int(r.dec.SampleRate) }
func (r *wavReader) Close() error    { return r.file.Close() }

// rawReader decodes headerless little-endian float32 I/Q pairs.
type rawReader struct {
	file *os.File
	br   *bufio.Reader
	rate int
	raw  []byte
}

func openRawReader(path string, rate int) (*rawReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileOpen, err)
	}
	return &rawReader{file: f, br: bufio.NewReader(f), rate: rate}, nil
}

func (r *rawReader) ReadItems(dst []float64) (int, error) {
	need := len(dst) * 4
	if cap(r.raw) < need {
		r.raw = make([]byte, need)
	}
	raw := r.raw[:need]

	got, err := io.ReadFull(r.br, raw)
	n := got / 4
	for i := range n {
		dst[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:])))
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

func (r *rawReader) Channels() int   { return 2 }
func (r *rawReader) SampleRate() int { return r.rate }
func (r *rawReader) Close() error    { return r.file.Close() }

var (
	_ FrameReader = (*wavReader)(nil)
	_ FrameReader = (*rawReader)(nil)
)
