// SPDX-License-Identifier: MIT
package block

import "fmt"

// Stream is a fixed-size ring of complex samples written by one block and
// read by any number of Ports. Writers obtain the contiguous free region
// after the write pointer, fill it, then Advance. Readers address samples by
// absolute position; only the last Size() samples are retained.
type Stream struct {
	buf   []complex128
	ptr   int   // Write index into buf.
	avail int   // Number of valid samples retained, <= len(buf).
	pos   int64 // Absolute position of the next write.
}

// NewStream returns a stream retaining size samples.
func NewStream(size int) *Stream {
	if size <= 0 {
		size = DefaultStreamSize
	}
	return &Stream{buf: make([]complex128, size)}
}

// Size returns the ring capacity.
func (s *Stream) Size() int {
	return len(s.buf)
}

// Contiguous returns the writable region starting at the write pointer,
// limited to max samples and to the end of the ring.
func (s *Stream) Contiguous(max int) []complex128 {
	n := len(s.buf) - s.ptr
	if max < n {
		n = max
	}
	if n < 0 {
		n = 0
	}
	return s.buf[s.ptr : s.ptr+n]
}

// Advance commits n samples written into the last Contiguous region.
func (s *Stream) Advance(n int) (int, error) {
	if n < 0 || n > len(s.buf)-s.ptr {
		return 0, fmt.Errorf("%w: advance by %d with %d contiguous", ErrStreamAdvance, n, len(s.buf)-s.ptr)
	}

	s.ptr += n
	if s.ptr == len(s.buf) {
		s.ptr = 0
	}
	s.avail += n
	if s.avail > len(s.buf) {
		s.avail = len(s.buf)
	}
	s.pos += int64(n)

	return n, nil
}

// Tell returns the absolute position of the next write.
func (s *Stream) Tell() int64 {
	return s.pos
}

// Oldest returns the absolute position of the oldest retained sample.
func (s *Stream) Oldest() int64 {
	return s.pos - int64(s.avail)
}

// Read copies samples starting at absolute position pos into dst and returns
// the number copied. It returns 0 when pos has caught up with the writer and
// ErrPortDesync when pos refers to samples already overwritten.
func (s *Stream) Read(pos int64, dst []complex128) (int, error) {
	if pos < s.Oldest() {
		return 0, ErrPortDesync
	}
	if pos > s.pos {
		return 0, fmt.Errorf("%w: read position %d ahead of writer %d", ErrStreamAdvance, pos, s.pos)
	}

	n := int(s.pos - pos)
	if n > len(dst) {
		n = len(dst)
	}
	if n == 0 {
		return 0, nil
	}

	// Index of pos inside the ring.
	size := len(s.buf)
	start := (s.ptr - int(s.pos-pos)%size + size) % size

	first := copy(dst[:n], s.buf[start:])
	if first < n {
		copy(dst[first:n], s.buf[:n-first])
	}

	return n, nil
}
