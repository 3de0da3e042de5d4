// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/seedrelay/lib/checkpoint"
	"github.com/bureau-foundation/seedrelay/lib/clock"
	"github.com/bureau-foundation/seedrelay/lib/datalink"
	"github.com/bureau-foundation/seedrelay/lib/hptime"
	"github.com/bureau-foundation/seedrelay/lib/seedlink"
	"github.com/bureau-foundation/seedrelay/lib/translate"
)

// DefaultBackoff is the wait between sink reconnection attempts.
const DefaultBackoff = 10 * time.Second

// LevelTrace is below debug. Per-packet logging happens here.
const LevelTrace = slog.LevelDebug - 4

var (
	// ErrStartup means termination arrived before the sink was ever
	// reached.
	ErrStartup = errors.New("relay: DataLink server never reached")

	// ErrSource wraps the fatal source error Run returns after
	// draining.
	ErrSource = errors.New("relay: source failed")
)

// Source yields packets. Next returns seedlink.ErrEndOfStream on an
// orderly end; any other error is fatal.
type Source interface {
	Next(ctx context.Context) (*seedlink.Packet, error)
	Close() error
}

// Sink accepts translated records.
type Sink interface {
	Connect(ctx context.Context) error
	Deliver(ctx context.Context, unit translate.Unit, requestAck bool) (datalink.Ack, error)
	Disconnect()
	Connected() bool
}

// Translator converts a raw record into a deliverable unit.
type Translator interface {
	Translate(record []byte) (translate.Unit, error)
}

// Store persists checkpoints.
type Store interface {
	Save(state checkpoint.State) error
}

// Metrics receives controller events. [metrics.Metrics] implements it.
type Metrics interface {
	PacketReceived(packetType string)
	RecordForwarded(latency time.Duration)
	RecordDropped()
	RecordAbandoned()
	SinkReconnected()
	CheckpointSaved(err error)
	SetState(state string)
}

// Config assembles a Controller.
type Config struct {
	Source     Source
	Sink       Sink
	Translator Translator

	// Store may be nil, which disables checkpointing.
	Store Store

	// CheckpointInterval saves every N forwarded records. Zero saves
	// only while draining.
	CheckpointInterval int

	// Backoff defaults to DefaultBackoff.
	Backoff time.Duration

	RequestAck bool

	// Initial seeds the tracked positions, normally from the loaded
	// checkpoint, so that streams with no traffic this run keep
	// their saved position.
	Initial checkpoint.State

	// Clock defaults to the real clock.
	Clock clock.Clock

	Logger *slog.Logger

	// Metrics may be nil.
	Metrics Metrics
}

// State is a controller state.
type State int32

const (
	Stopped State = iota
	Running
	Reconnecting
	Draining
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Reconnecting:
		return "reconnecting"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Stats counts what the controller has done. Received counts every
// packet from the source, Forwarded the records the sink accepted,
// Dropped the records with unparseable headers, and Discarded the
// packets that carry no record, such as INFO.
type Stats struct {
	Received   uint64
	Forwarded  uint64
	Dropped    uint64
	Discarded  uint64
	Reconnects uint64
	Abandoned  uint64
}

// Controller runs the delivery loop. Run must be called at most once;
// State, Stats, and Positions are safe from any goroutine.
type Controller struct {
	source     Source
	sink       Sink
	translator Translator
	store      Store
	interval   int
	backoff    time.Duration
	requestAck bool
	clock      clock.Clock
	logger     *slog.Logger
	metrics    Metrics

	state atomic.Int32

	mutex     sync.Mutex
	stats     Stats
	positions checkpoint.State

	sinceSave int
}

// New validates cfg and returns a stopped Controller.
func New(cfg Config) (*Controller, error) {
	if cfg.Source == nil || cfg.Sink == nil || cfg.Translator == nil {
		return nil, fmt.Errorf("relay: source, sink, and translator are required")
	}
	if cfg.CheckpointInterval < 0 {
		return nil, fmt.Errorf("relay: negative checkpoint interval %d", cfg.CheckpointInterval)
	}
	if cfg.Backoff < 0 {
		return nil, fmt.Errorf("relay: negative backoff %v", cfg.Backoff)
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = discardMetrics{}
	}
	return &Controller{
		source:     cfg.Source,
		sink:       cfg.Sink,
		translator: cfg.Translator,
		store:      cfg.Store,
		interval:   cfg.CheckpointInterval,
		backoff:    cfg.Backoff,
		requestAck: cfg.RequestAck,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		positions:  cfg.Initial.Clone(),
	}, nil
}

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Stats returns a snapshot of the counters.
func (c *Controller) Stats() Stats {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.stats
}

// Positions returns a copy of the tracked stream positions.
func (c *Controller) Positions() checkpoint.State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.positions.Clone()
}

func (c *Controller) setState(state State) {
	if State(c.state.Swap(int32(state))) == state {
		return
	}
	c.metrics.SetState(state.String())
	c.logger.Debug("controller state changed", "state", state.String())
}

// Run connects the sink and relays until the source ends or ctx is
// cancelled. It returns nil after an orderly shutdown, an error
// wrapping ErrStartup if ctx ended before the sink was first reached,
// or an error wrapping ErrSource when the source failed.
func (c *Controller) Run(ctx context.Context) error {
	c.setState(Reconnecting)
	if err := c.connect(ctx); err != nil {
		c.setState(Draining)
		c.closeSource()
		c.setState(Stopped)
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}
	c.setState(Running)

	for {
		packet, err := c.source.Next(ctx)
		if err != nil {
			return c.drain(err)
		}
		c.count(func(s *Stats) { s.Received++ })
		c.metrics.PacketReceived(packet.Type.String())
		c.logger.Log(ctx, LevelTrace, "received packet",
			"type", packet.Type.String(),
			"sequence", packet.Sequence,
			"network", packet.Network,
			"station", packet.Station,
		)

		if !packet.Type.DataBearing() {
			c.count(func(s *Stats) { s.Discarded++ })
			continue
		}

		unit, err := c.translator.Translate(packet.Record)
		if err != nil {
			c.logger.Error("dropping record", "error", err, "sequence", packet.Sequence)
			c.count(func(s *Stats) { s.Dropped++ })
			c.metrics.RecordDropped()
			c.advance(packet, time.Time{})
			continue
		}

		if !c.deliver(ctx, unit) {
			c.logger.Warn("termination requested during reconnect, abandoning record",
				"stream", unit.StreamID,
				"sequence", packet.Sequence,
				"start", hptime.FromTime(unit.Start).SEEDString(true),
			)
			c.count(func(s *Stats) { s.Abandoned++ })
			c.metrics.RecordAbandoned()
			return c.drain(seedlink.ErrEndOfStream)
		}
		c.count(func(s *Stats) { s.Forwarded++ })
		c.advance(packet, unit.Start)

		c.sinceSave++
		if c.interval > 0 && c.sinceSave >= c.interval {
			c.save()
		}
	}
}

// deliver forwards unit, reconnecting as often as needed. It returns
// false only when ctx ends between attempts. An exchange in progress
// is never cut short by ctx; the sink's own timeout bounds it.
func (c *Controller) deliver(ctx context.Context, unit translate.Unit) bool {
	exchange := context.WithoutCancel(ctx)
	reconnected := false
	for {
		started := c.clock.Now()
		ack, err := c.sink.Deliver(exchange, unit, c.requestAck)
		if err == nil {
			c.metrics.RecordForwarded(c.clock.Now().Sub(started))
			c.logger.Log(ctx, LevelTrace, "record delivered",
				"stream", unit.StreamID,
				"start", hptime.FromTime(unit.Start).SEEDString(true),
				"ack", ack.Value,
			)
			c.setState(Running)
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		c.setState(Reconnecting)
		c.logger.Error("delivery failed", "stream", unit.StreamID, "error", err)

		// The sink accepted a connection and then refused the record.
		// Waiting here keeps a persistent rejection from spinning.
		if reconnected {
			if c.wait(ctx) != nil {
				return false
			}
		}
		if c.sink.Connected() {
			c.sink.Disconnect()
		}
		if c.connect(ctx) != nil {
			return false
		}
		reconnected = true
		c.count(func(s *Stats) { s.Reconnects++ })
		c.metrics.SinkReconnected()
		c.logger.Info("reconnected to DataLink server")
	}
}

// connect retries Connect with the fixed backoff until it succeeds
// or ctx ends.
func (c *Controller) connect(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.sink.Connect(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Error("cannot connect to DataLink server",
			"error", err,
			"attempt", attempt,
			"retry_in", c.backoff,
		)
		if err := c.wait(ctx); err != nil {
			return err
		}
	}
}

// wait sleeps for the backoff or until ctx ends.
func (c *Controller) wait(ctx context.Context) error {
	select {
	case <-c.clock.After(c.backoff):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// advance records the position of a consumed packet. A zero start
// keeps the stream's previous time.
func (c *Controller) advance(packet *seedlink.Packet, start time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	position, _ := c.positions.Lookup(packet.Network, packet.Station)
	position.Network = packet.Network
	position.Station = packet.Station
	position.Sequence = packet.Sequence
	if !start.IsZero() {
		position.Time = start
	}
	c.positions.Update(position)
}

func (c *Controller) count(update func(*Stats)) {
	c.mutex.Lock()
	update(&c.stats)
	c.mutex.Unlock()
}

func (c *Controller) save() {
	c.sinceSave = 0
	if c.store == nil {
		return
	}
	err := c.store.Save(c.Positions())
	c.metrics.CheckpointSaved(err)
	if err != nil {
		c.logger.Error("saving checkpoint failed", "error", err)
		return
	}
	c.logger.Debug("checkpoint saved")
}

func (c *Controller) closeSource() {
	if err := c.source.Close(); err != nil {
		c.logger.Warn("closing SeedLink session", "error", err)
	}
}

// drain shuts both sessions down and saves the final checkpoint.
func (c *Controller) drain(cause error) error {
	c.setState(Draining)
	c.closeSource()
	if c.sink.Connected() {
		c.sink.Disconnect()
	}
	c.save()
	c.setState(Stopped)

	stats := c.Stats()
	c.logger.Info("relay stopped",
		"received", stats.Received,
		"forwarded", stats.Forwarded,
		"dropped", stats.Dropped,
		"discarded", stats.Discarded,
		"reconnects", stats.Reconnects,
		"abandoned", stats.Abandoned,
	)
	if cause == nil || errors.Is(cause, seedlink.ErrEndOfStream) {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrSource, cause)
}

type discardMetrics struct{}

func (discardMetrics) PacketReceived(string)         {}
func (discardMetrics) RecordForwarded(time.Duration) {}
func (discardMetrics) RecordDropped()                {}
func (discardMetrics) RecordAbandoned()              {}
func (discardMetrics) SinkReconnected()              {}
func (discardMetrics) CheckpointSaved(error)         {}
func (discardMetrics) SetState(string)               {}
