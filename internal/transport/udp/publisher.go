// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"sigscope/internal/analysis"
	applog "sigscope/internal/log"
)

// HeaderSize is the fixed packet header length in bytes.
const HeaderSize = 4 + 8 + 8 + 2

// UDPPublisher periodically fetches the latest magnitude spectrum, packs it
// into the binary format below and sends it with a UDPSender. It runs in its
// own goroutine between Start and Stop.
type UDPPublisher struct {
	sender   *UDPSender
	provider analysis.FFTResultProvider
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	sequenceNum uint32

	// Reused by buildPacket.
	magBuffer    []float64
	f32Buffer    []float32
	packetBuffer *bytes.Buffer
}

// NewUDPPublisher creates a publisher for provider. An interval <= 0 defaults
// to 16ms (~60Hz).
func NewUDPPublisher(interval time.Duration, sender *UDPSender, provider analysis.FFTResultProvider) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("UDPPublisher: spectrum provider cannot be nil")
	}
	bins := provider.GetBinCount()
	if bins > math.MaxUint16 {
		return nil, fmt.Errorf("UDPPublisher: %d bins do not fit in a packet", bins)
	}

	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}

	applog.Infof("UDPPublisher: Initializing (Interval: %s, Bins: %d)", interval, bins)

	return &UDPPublisher{
		sender:       sender,
		provider:     provider,
		interval:     interval,
		magBuffer:    make([]float64, bins),
		f32Buffer:    make([]float32, bins),
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start launches the publishing goroutine. Calling Start while running is a
// no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publishing goroutine and waits for it to exit. Calling
// Stop when not running is a no-op.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("UDPPublisher: Publisher goroutine finished.")
	return nil
}

/*
UDP packet layout, big endian:

	+-----------------+-----------+-------------+-------+----------------+
	| Sequence Number | Timestamp | Sample Rate | Count | Magnitudes     |
	| uint32          | int64 ns  | float64 Hz  | uint16| Count*float32  |
	+-----------------+-----------+-------------+-------+----------------+

Magnitudes are in bin order: for I/Q input bin 0 is the most negative
frequency.
*/

// buildPacket packs the current spectrum into the reusable packet buffer.
func (p *UDPPublisher) buildPacket(now time.Time) ([]byte, error) {
	if err := p.provider.GetMagnitudesInto(p.magBuffer); err != nil {
		return nil, fmt.Errorf("getting magnitudes: %w", err)
	}
	for i, v := range p.magBuffer {
		p.f32Buffer[i] = float32(v)
	}

	p.sequenceNum++
	p.packetBuffer.Reset()

	err := binary.Write(p.packetBuffer, binary.BigEndian, p.sequenceNum)
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, now.UnixNano())
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, p.provider.GetSampleRate())
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, uint16(len(p.f32Buffer)))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, p.f32Buffer)
	}
	if err != nil {
		return nil, fmt.Errorf("packing data: %w", err)
	}
	return p.packetBuffer.Bytes(), nil
}

func (p *UDPPublisher) buildAndSendPacket() {
	packet, err := p.buildPacket(time.Now())
	if err != nil {
		applog.Errorf("UDPPublisher: %v", err)
		return
	}
	if err := p.sender.Send(packet); err == nil {
		applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, len(packet))
	}
}

// Close stops the publisher and closes its sender.
func (p *UDPPublisher) Close() error {
	return errors.Join(p.Stop(), p.sender.Close())
}

// Packet is a decoded spectrum packet.
type Packet struct {
	Sequence   uint32
	Timestamp  time.Time
	SampleRate float64
	Magnitudes []float32
}

// DecodePacket parses a packet produced by UDPPublisher.
func DecodePacket(data []byte) (Packet, error) {
	var (
		pkt   Packet
		ts    int64
		count uint16
	)
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.BigEndian, &pkt.Sequence); err != nil {
		return Packet{}, fmt.Errorf("sequence: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &ts); err != nil {
		return Packet{}, fmt.Errorf("timestamp: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &pkt.SampleRate); err != nil {
		return Packet{}, fmt.Errorf("sample rate: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return Packet{}, fmt.Errorf("count: %w", err)
	}
	pkt.Timestamp = time.Unix(0, ts)
	pkt.Magnitudes = make([]float32, count)
	if err := binary.Read(r, binary.BigEndian, pkt.Magnitudes); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Packet{}, fmt.Errorf("magnitudes: %w", err)
	}
	return pkt, nil
}

var _ interface{ Close() error } = (*UDPPublisher)(nil)
