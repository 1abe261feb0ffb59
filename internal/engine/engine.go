// SPDX-License-Identifier: MIT
/*
Package engine owns one acquisition session: it builds the file source block,
reads its properties back, attaches the analysis observers and publishers,
and pulls the block's output until end-of-stream.

Everything on the pull path runs on the caller's goroutine. Publishers that
talk to the network hand data off to their own goroutines.
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"sigscope/internal/analysis"
	"sigscope/internal/block"
	"sigscope/internal/config"
	applog "sigscope/internal/log"
	"sigscope/internal/source"
	"sigscope/internal/transport"
	"sigscope/internal/transport/udp"
)

// Stats are the session counters.
type Stats struct {
	Samples   uint64 // Samples pulled from the block.
	Windows   uint64 // Windows analysed.
	Published uint64 // Windows sent to the transports.
	Gated     uint64 // Windows held back by the gate.
	Source    source.Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry builds the source block in reg instead of block.Default.
func WithRegistry(reg *block.Registry) Option {
	return func(e *Engine) { e.registry = reg }
}

// WithTransport adds a transport next to the configured ones. The engine
// closes it on Close.
func WithTransport(t transport.Transport) Option {
	return func(e *Engine) { e.transports = append(e.transports, t) }
}

// WithObserver adds a window observer next to the engine's own.
func WithObserver(o source.Observer) Option {
	return func(e *Engine) { e.fan.add(o) }
}

// fanout lets observers be attached after the source is open, once the
// sample rate and layout are known.
type fanout struct {
	observers []source.Observer
}

func (f *fanout) add(o ...source.Observer) {
	f.observers = append(f.observers, o...)
}

func (f *fanout) OnWindowReady(w source.Window) {
	for _, o := range f.observers {
		o.OnWindowReady(w)
	}
}

// Engine runs one session.
type Engine struct {
	config   *config.Config
	registry *block.Registry

	block      *block.Block
	source     *source.Source
	port       *block.Port
	sampleRate int

	fan        *fanout
	spectrum   *analysis.Spectrum
	bands      *analysis.BandPower
	gate       *Gate
	recorder   *Recorder
	transports transport.Multi
	udp        *udp.UDPPublisher

	buf     []complex128
	lastSeq uint64
	stats   Stats
	closed  bool

	log *zap.SugaredLogger
}

// NewEngine opens cfg.Source.File and wires the session. On failure
// everything opened so far is closed again.
func NewEngine(cfg *config.Config, opts ...Option) (_ *Engine, err error) {
	if cfg.Source.File == "" {
		return nil, fmt.Errorf("%w: no input file", source.ErrInvalidConfiguration)
	}

	e := &Engine{
		config:   cfg,
		registry: block.Default,
		fan:      &fanout{},
		log:      applog.Named("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	if err := e.openSource(); err != nil {
		return nil, err
	}
	if err := e.attachAnalysis(); err != nil {
		return nil, err
	}
	if err := e.attachRecorder(time.Now()); err != nil {
		return nil, err
	}
	if err := e.attachTransports(); err != nil {
		return nil, err
	}

	e.buf = make([]complex128, cfg.Source.PullSize)
	return e, nil
}

func (e *Engine) openSource() error {
	s := e.config.Source

	params := e.config.SourceParams()
	params.Observers = []source.Observer{e.fan}

	b, err := source.NewBlock(e.registry, params, block.WithStreamSize(s.StreamSize))
	if err != nil {
		return fmt.Errorf("cannot create source block: %w", err)
	}
	e.block = b

	rate, err := b.Properties().Int(source.PropSampleRate)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", source.PropSampleRate, err)
	}
	e.sampleRate = int(rate)

	if e.source, err = source.Instance(b); err != nil {
		return fmt.Errorf("cannot read %s: %w", source.PropInstance, err)
	}

	if e.port, err = block.Plug(b, 0); err != nil {
		return err
	}
	return nil
}

func (e *Engine) attachAnalysis() (err error) {
	iq := e.source.Layout() == "iq"
	if e.spectrum, err = analysis.NewSpectrum(e.source.WindowSize(), float64(e.sampleRate), iq); err != nil {
		return err
	}
	if e.bands, err = analysis.NewBandPower(e.spectrum, e.config.Analysis.Bands); err != nil {
		return err
	}

	g := e.config.Gate
	e.gate = NewGate(g.LevelDB, g.Hold)
	if g.Enabled {
		e.gate.EnableGate()
	}

	e.fan.add(e.spectrum, e.gate)
	return nil
}

func (e *Engine) attachRecorder(now time.Time) error {
	rc := e.config.Recording
	if !rc.Enabled {
		return nil
	}

	channels := 1
	if e.source.Layout() == "iq" {
		channels = 2
	}

	r := NewRecorder()
	path := RecordingPath(rc.File, rc.OutputDir, e.config.Source.File, now)
	if err := r.Start(path, e.sampleRate, channels, rc.BitDepth); err != nil {
		return fmt.Errorf("cannot start recording: %w", err)
	}
	e.recorder = r
	e.fan.add(r)
	return nil
}

func (e *Engine) attachTransports() error {
	t := e.config.Transport

	if e.config.Debug {
		e.transports = append(e.transports, transport.NewLoggingTransport())
	}

	if t.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(t.WebSocketAddress, t.WebSocketPath)
		if err != nil {
			return err
		}
		e.transports = append(e.transports, ws)
	}

	if t.MQTTEnabled {
		mt, err := transport.NewMQTTTransport(transport.MQTTConfig{
			Broker:   t.MQTTBroker,
			Topic:    t.MQTTTopic,
			ClientID: t.MQTTClientID,
			QoS:      t.MQTTQoS,
			Types:    []string{analysis.PeakReport{}.MessageType()},
		})
		if err != nil {
			return err
		}
		e.transports = append(e.transports, mt)
	}

	if t.UDPEnabled {
		sender, err := udp.NewUDPSender(t.UDPTargetAddress)
		if err != nil {
			return err
		}
		pub, err := udp.NewUDPPublisher(t.UDPSendInterval, sender, e.spectrum)
		if err != nil {
			sender.Close()
			return err
		}
		e.udp = pub
	}

	return nil
}

// Run pulls the source until end-of-stream or until ctx is done. Reaching
// end-of-stream returns nil.
func (e *Engine) Run(ctx context.Context) error {
	if e.closed {
		return block.ErrClosed
	}
	if e.udp != nil {
		e.udp.Start()
		defer e.udp.Stop()
	}

	e.log.Infof("Reading %s (%d Hz, window %d, %s)",
		e.source.File(), e.sampleRate, e.source.WindowSize(), e.source.Layout())

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := e.port.Read(e.buf)
		switch {
		case errors.Is(err, io.EOF):
			e.stats.Source = e.source.Stats()
			e.log.Infof("End of stream after %d windows (%d published, %d gated)",
				e.stats.Windows, e.stats.Published, e.stats.Gated)
			return nil
		case errors.Is(err, block.ErrPortDesync):
			e.log.Warnf("Fell behind the source block, resynchronised at %d", e.port.Position())
			continue
		case err != nil:
			return fmt.Errorf("reading %s: %w", e.source.File(), err)
		}

		e.stats.Samples += uint64(n)
		e.publish()
	}
}

// publish sends the results of a window completed by the last read.
func (e *Engine) publish() {
	seq := e.spectrum.Sequence()
	if seq == e.lastSeq {
		return
	}
	e.lastSeq = seq
	e.stats.Windows++

	if !e.gate.Open() {
		e.stats.Gated++
		return
	}
	e.stats.Published++

	if len(e.transports) == 0 {
		return
	}

	if err := e.transports.Send(e.spectrum.Frame()); err != nil {
		e.log.Debugf("Sending spectrum %d: %v", seq, err)
	}
	e.bands.Process(e.transports, seq)
	if err := e.transports.Send(e.spectrum.PeakReport(e.source.File(), time.Now())); err != nil {
		e.log.Debugf("Sending peak %d: %v", seq, err)
	}
}

// SampleRate returns the session sample rate read back from the block.
func (e *Engine) SampleRate() int { return e.sampleRate }

// Spectrum returns the spectrum observer.
func (e *Engine) Spectrum() *analysis.Spectrum { return e.spectrum }

// Gate returns the level gate.
func (e *Engine) Gate() *Gate { return e.gate }

// Stats returns the session counters.
func (e *Engine) Stats() Stats {
	s := e.stats
	if e.source != nil {
		s.Source = e.source.Stats()
	}
	return s
}

// Close stops publishing, finalises any recording and releases the source
// block. It is safe to call more than once.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	if e.recorder != nil {
		errs = append(errs, e.recorder.Stop())
	}
	if e.udp != nil {
		errs = append(errs, e.udp.Close())
	}
	errs = append(errs, e.transports.Close())
	if e.block != nil {
		e.block.Close()
	}
	return errors.Join(errs...)
}
