// SPDX-License-Identifier: MIT
package source

// Deinterleave converts real/imaginary pairs from src into complex samples in
// dst: dst[k] = complex(src[2k], src[2k+1]). It converts
// min(len(dst), len(src)/2) samples and returns that count; a trailing
// unpaired value in src is ignored.
func Deinterleave(dst []complex128, src []float64) int {
	n := len(src) / 2
	if len(dst) < n {
		n = len(dst)
	}
	for k := range n {
		dst[k] = complex(src[2*k], src[2*k+1])
	}
	return n
}

// Interleave is the inverse of Deinterleave: dst[2k] = real(src[k]),
// dst[2k+1] = imag(src[k]). It returns the number of samples converted.
func Interleave(dst []float64, src []complex128) int {
	n := len(src)
	if len(dst)/2 < n {
		n = len(dst) / 2
	}
	for k := range n {
		dst[2*k] = real(src[k])
		dst[2*k+1] = imag(src[k])
	}
	return n
}
