// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	applog "sigscope/internal/log"
)

// ErrSenderClosed is returned by Send after Close.
var ErrSenderClosed = errors.New("UDP sender is closed")

// SenderStats counts datagrams handed to the socket.
type SenderStats struct {
	Packets uint64
	Bytes   uint64
	Errors  uint64
}

// UDPSender writes datagrams to one connected peer.
type UDPSender struct {
	mu     sync.Mutex // Guards conn, closed and stats.
	conn   *net.UDPConn
	target *net.UDPAddr
	closed bool
	stats  SenderStats

	log *zap.SugaredLogger
}

// NewUDPSender resolves targetAddress ("host:port") and connects a socket to
// it. UDP connect only fixes the peer, so an unreachable target is reported
// by later writes, if at all.
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	target, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target address '%s': %w", targetAddress, err)
	}

	conn, err := net.DialUDP("udp", nil, target)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP for target '%s': %w", targetAddress, err)
	}

	s := &UDPSender{
		conn:   conn,
		target: target,
		log:    applog.Named("udp"),
	}
	s.log.Infof("Sending to %s from %s", conn.RemoteAddr(), conn.LocalAddr())
	return s, nil
}

// Target returns the resolved destination address.
func (s *UDPSender) Target() *net.UDPAddr {
	return s.target
}

// Send writes data as one datagram. It is safe for concurrent use.
func (s *UDPSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSenderClosed
	}
	n, err := s.conn.Write(data)
	if err != nil {
		s.stats.Errors++
		s.log.Debugf("Error sending %d bytes: %v", len(data), err)
		return fmt.Errorf("failed to send UDP packet: %w", err)
	}
	s.stats.Packets++
	s.stats.Bytes += uint64(n)
	return nil
}

// Stats returns a snapshot of the counters.
func (s *UDPSender) Stats() SenderStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close closes the socket. Further sends fail with ErrSenderClosed.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.log.Infof("Closing connection to %s (%d packets, %d bytes, %d errors)",
		s.target, s.stats.Packets, s.stats.Bytes, s.stats.Errors)
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close UDP connection: %w", err)
	}
	return nil
}
