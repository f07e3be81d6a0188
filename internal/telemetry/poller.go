package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nerrad567/benchdash/internal/sensor"
)

// DefaultPollInterval is the pause between sensor reads.
const DefaultPollInterval = 100 * time.Millisecond

// PollerConfig configures a Poller.
type PollerConfig struct {
	// Interval is the fixed pause between reads. There is no backoff.
	Interval time.Duration

	// Decoder translates raw blocks. Defaults to sensor.BlockDecoder.
	Decoder sensor.Decoder

	// Sink receives each recorded sample (optional).
	Sink Sink

	// Logger for read/decode warnings (optional).
	Logger Logger
}

// Poller is the single background reader of one Context.
type Poller struct {
	tctx *Context
	cfg  PollerConfig

	done chan struct{}

	samples atomic.Uint64
	errors  atomic.Uint64
}

// NewPoller creates the poller for c.
//
// Returns ErrPollerStarted if c already has a poller.
func NewPoller(c *Context, cfg PollerConfig) (*Poller, error) {
	if !c.pollerStarted.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: %s", ErrPollerStarted, c.address)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Decoder == nil {
		cfg.Decoder = sensor.BlockDecoder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Poller{
		tctx: c,
		cfg:  cfg,
		done: make(chan struct{}),
	}, nil
}

// Run reads, decodes and records samples until ctx is cancelled, then closes
// the context's link. Read and decode errors are logged and skipped.
func (p *Poller) Run(ctx context.Context) {
	defer close(p.done)
	defer p.closeLink()

	log := p.cfg.Logger
	addr := p.tctx.address
	log.Info("telemetry poller started", "address", addr, "interval", p.cfg.Interval)

	for {
		if ctx.Err() != nil {
			log.Info("telemetry poller stopping", "address", addr, "samples", p.samples.Load())
			return
		}

		p.step(ctx)

		select {
		case <-ctx.Done():
		case <-time.After(p.cfg.Interval):
		}
	}
}

// step performs one read-decode-append iteration.
func (p *Poller) step(ctx context.Context) {
	log := p.cfg.Logger
	addr := p.tctx.address

	raw, err := p.tctx.link.ReadBlock(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.errors.Add(1)
			log.Warn("telemetry read error", "address", addr, "error", err)
		}
		return
	}

	values, err := p.cfg.Decoder.Decode(raw)
	if err != nil {
		p.errors.Add(1)
		log.Warn("telemetry decode error", "address", addr, "error", err)
		return
	}

	sample := Sample(values)
	p.tctx.history.AddSample(sample)
	p.samples.Add(1)

	if p.cfg.Sink != nil {
		src := Source{Address: addr, Identity: p.tctx.identity}
		if err := p.cfg.Sink.Publish(ctx, src, time.Now(), sample); err != nil {
			log.Warn("telemetry sink error", "address", addr, "error", err)
		}
	}
}

// closeLink releases the link through the context's close-once guard.
func (p *Poller) closeLink() {
	if err := p.tctx.Close(); err != nil {
		p.cfg.Logger.Warn("error closing sensor link", "address", p.tctx.address, "error", err)
		return
	}
	p.cfg.Logger.Info("sensor link closed", "address", p.tctx.address)
}

// Done is closed once Run has returned and the link is released.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Samples returns the number of samples recorded.
func (p *Poller) Samples() uint64 {
	return p.samples.Load()
}

// Errors returns the number of dropped readings.
func (p *Poller) Errors() uint64 {
	return p.errors.Load()
}
