// SPDX-License-Identifier: MIT
package block

import "errors"

var (
	// ErrRegistration is returned when a class descriptor cannot be registered,
	// e.g. a different descriptor already owns the name.
	ErrRegistration = errors.New("block class registration failed")

	// ErrUnknownClass is returned when instantiating a name nobody registered.
	ErrUnknownClass = errors.New("unknown block class")

	// ErrConstruct wraps constructor failures.
	ErrConstruct = errors.New("block construction failed")

	// ErrPropertyBinding is returned when a property cannot be bound.
	ErrPropertyBinding = errors.New("property binding failed")

	// ErrPropertyLookup is returned for a missing name or a type mismatch.
	ErrPropertyLookup = errors.New("property lookup failed")

	// ErrStreamAdvance is returned when a stream cannot advance by the
	// requested amount.
	ErrStreamAdvance = errors.New("stream advance out of range")

	// ErrPortDesync is returned when a port fell behind the stream and
	// samples were overwritten before it could read them. The port is
	// resynchronized to the oldest retained sample.
	ErrPortDesync = errors.New("port desynchronized from stream")

	// ErrClosed is returned when using a block after Close.
	ErrClosed = errors.New("block closed")
)
