// SPDX-License-Identifier: MIT
package source

import "errors"

var (
	// ErrAllocation is returned when buffers for the requested window cannot
	// be allocated.
	ErrAllocation = errors.New("cannot allocate source buffers")

	// ErrFileOpen is returned when the input file is missing, unreadable or
	// not in a supported encoding.
	ErrFileOpen = errors.New("cannot open source file")

	// ErrInvalidConfiguration is returned for parameter combinations the
	// source cannot honour, e.g. an odd window size with paired frames.
	ErrInvalidConfiguration = errors.New("invalid source configuration")

	// ErrTransformPlan is returned when no transform plan can be prepared
	// for the window size.
	ErrTransformPlan = errors.New("cannot prepare transform plan")
)
