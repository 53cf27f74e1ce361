package metrics

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/mosaicnetworks/eventcore"

// Instrument names.
const (
	BufferedEventsName = "eventcore.future_buffer.events"
	RoundsDecidedName  = "eventcore.consensus.rounds_decided"
	ConsensusEventName = "eventcore.consensus.events"
	DiscardedName      = "eventcore.intake.discarded"
)

// Registry groups the instruments of one node.
type Registry struct {
	meter metric.Meter

	bufferedEvents *Gauge
	roundsDecided  metric.Int64Counter
	consensusEvent metric.Int64Counter
	discarded      metric.Int64Counter
}

// NewRegistry creates the instruments on the given meter provider.
func NewRegistry(provider metric.MeterProvider) (*Registry, error) {
	meter := provider.Meter(instrumentationName)

	buffered, err := meter.Int64UpDownCounter(BufferedEventsName,
		metric.WithDescription("Number of events held in the future event buffer"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	rounds, err := meter.Int64Counter(RoundsDecidedName,
		metric.WithDescription("Number of rounds decided"),
		metric.WithUnit("{round}"),
	)
	if err != nil {
		return nil, err
	}

	events, err := meter.Int64Counter(ConsensusEventName,
		metric.WithDescription("Number of events that reached consensus"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	discarded, err := meter.Int64Counter(DiscardedName,
		metric.WithDescription("Number of events discarded as ancient or stale"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	return &Registry{
		meter:          meter,
		bufferedEvents: &Gauge{counter: buffered},
		roundsDecided:  rounds,
		consensusEvent: events,
		discarded:      discarded,
	}, nil
}

// Nop returns a Registry whose instruments record nothing. Gauge values are
// still tracked locally.
func Nop() *Registry {
	r, err := NewRegistry(noop.NewMeterProvider())
	if err != nil {
		//the no-op provider never fails
		panic(err)
	}
	return r
}

// BufferedEvents is the gauge of events held by the future event buffer.
func (r *Registry) BufferedEvents() *Gauge {
	return r.bufferedEvents
}

// RoundDecided records a decided round and the number of events it ordered.
func (r *Registry) RoundDecided(events int) {
	ctx := context.Background()
	r.roundsDecided.Add(ctx, 1)
	r.consensusEvent.Add(ctx, int64(events))
}

// Discarded records events dropped without reaching consensus.
func (r *Registry) Discarded(n int) {
	if n <= 0 {
		return
	}
	r.discarded.Add(context.Background(), int64(n))
}

// Gauge is an up-down counter that also keeps its current value, so that it
// can be read back without a metrics pipeline.
type Gauge struct {
	counter metric.Int64UpDownCounter
	value   atomic.Int64
}

// Add moves the gauge by delta.
func (g *Gauge) Add(delta int64) {
	if delta == 0 {
		return
	}
	g.value.Add(delta)
	g.counter.Add(context.Background(), delta)
}

// Set moves the gauge to v.
func (g *Gauge) Set(v int64) {
	g.Add(v - g.value.Load())
}

// Value returns the current value.
func (g *Gauge) Value() int64 {
	return g.value.Load()
}
