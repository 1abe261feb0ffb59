// SPDX-License-Identifier: MIT
/*
Package transport delivers analysis results to the outside world. Every
publisher implements Transport; Send must not block the acquisition loop, so
network implementations queue or hand off and drop when they fall behind.
*/
package transport

import "errors"

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Multi fans every message out to a list of transports.
type Multi []Transport

// Send forwards data to every transport and returns the first error.
func (m Multi) Send(data any) error {
	var first error
	for _, t := range m {
		if err := t.Send(data); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every transport and returns the combined error.
func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Transport = Multi(nil)
