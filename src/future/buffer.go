package future

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/eventcore/src/common"
	"github.com/mosaicnetworks/eventcore/src/event"
	"github.com/mosaicnetworks/eventcore/src/metrics"
	"github.com/mosaicnetworks/eventcore/src/sequence"
	"github.com/mosaicnetworks/eventcore/src/window"
)

// Outcome is the classification of an event submitted to the buffer.
type Outcome int

const (
	// Discarded means the event is ancient and was dropped.
	Discarded Outcome = iota
	// PassThrough means the event is not from the future and must be
	// processed now.
	PassThrough
	// Buffered means the event is held until its birth round is pending.
	Buffered
)

func (o Outcome) String() string {
	switch o {
	case Discarded:
		return "Discarded"
	case PassThrough:
		return "PassThrough"
	case Buffered:
		return "Buffered"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is returned by AddEvent. Event is only set for PassThrough.
type Result struct {
	Outcome Outcome
	Event   *event.Event
}

// Buffer holds future events.
type Buffer struct {
	window window.EventWindow
	events *sequence.Map[*[]*event.Event]
	count  int

	gauge  *metrics.Gauge
	logger *logrus.Entry
}

// NewBuffer creates an empty buffer tracking w. A nil gauge disables
// reporting; a nil logger is replaced by a default one.
func NewBuffer(w window.EventWindow, gauge *metrics.Gauge, logger *logrus.Entry) *Buffer {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	b := &Buffer{
		window: w,
		gauge:  gauge,
		logger: logger.WithField("component", "future-buffer"),
	}
	b.events = b.newMap()

	return b
}

func (b *Buffer) newMap() *sequence.Map[*[]*event.Event] {
	return sequence.New[*[]*event.Event]("FutureEventBuffer", b.window.PendingConsensusRound()+1, sequence.RejectBelowFloor)
}

// Window returns the window currently tracked.
func (b *Buffer) Window() window.EventWindow {
	return b.window
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	return b.count
}

// AddEvent classifies e against the current window. A nil event is a contract
// violation.
func (b *Buffer) AddEvent(e *event.Event) Result {
	if e == nil {
		common.Violation("future", "nil event")
	}

	if b.window.IsAncient(e) {
		b.logger.WithFields(logrus.Fields{
			"event":             e.Hex(),
			"ancient_threshold": b.window.AncientThreshold(),
		}).Debug("Discarding ancient event")
		return Result{Outcome: Discarded}
	}

	if e.BirthRound() <= b.window.PendingConsensusRound() {
		return Result{Outcome: PassThrough, Event: e}
	}

	list, err := b.events.ComputeIfAbsent(e.BirthRound(), func() *[]*event.Event {
		return &[]*event.Event{}
	})
	if err != nil {
		//the floor never exceeds pending+1 since the window only moves forward
		common.Violation("future", "event %s below buffer floor: %v", e.Hex(), err)
	}
	*list = append(*list, e)
	b.count++
	b.report(1)

	b.logger.WithFields(logrus.Fields{
		"event":         e.Hex(),
		"birth_round":   e.BirthRound(),
		"pending_round": b.window.PendingConsensusRound(),
	}).Debug("Buffering future event")

	return Result{Outcome: Buffered}
}

// UpdateEventWindow advances the tracked window and returns the events that
// are no longer in the future, in ascending birth round then arrival order.
// Events that became ancient are dropped. The window must use the same mode as
// the previous one. Neither the pending round nor the ancient threshold moves
// backward; use Reset for that.
func (b *Buffer) UpdateEventWindow(w window.EventWindow) []*event.Event {
	w.CheckMode("future", b.window.Mode())
	if w.PendingConsensusRound() < b.window.PendingConsensusRound() ||
		w.AncientThreshold() < b.window.AncientThreshold() {
		b.logger.WithFields(logrus.Fields{
			"current": b.window.String(),
			"update":  w.String(),
		}).Debug("Ignoring backward window components")
	}
	w = b.window.Advance(w.LatestConsensusRound(), w.AncientThreshold())
	b.window = w

	released := []*event.Event{}
	evicted, discarded := 0, 0

	b.events.ShiftWindow(w.PendingConsensusRound()+1, func(round int64, list *[]*event.Event) {
		for _, e := range *list {
			evicted++
			if w.IsAncient(e) {
				discarded++
				continue
			}
			released = append(released, e)
		}
	})

	if evicted > 0 {
		b.count -= evicted
		b.report(-evicted)

		b.logger.WithFields(logrus.Fields{
			"pending_round":     w.PendingConsensusRound(),
			"ancient_threshold": w.AncientThreshold(),
			"released":          len(released),
			"discarded":         discarded,
			"remaining":         b.count,
		}).Debug("Released future events")
	}

	return released
}

// Reset drops every buffered event and installs w, which may lie behind the
// current window. The mode must not change.
func (b *Buffer) Reset(w window.EventWindow) {
	w.CheckMode("future", b.window.Mode())
	b.window = w
	b.Clear()
}

// Clear drops every buffered event. The map is rebuilt with its floor just
// above the current pending round.
func (b *Buffer) Clear() {
	dropped := b.count
	b.events = b.newMap()
	b.count = 0
	b.report(-dropped)

	if dropped > 0 {
		b.logger.WithField("dropped", dropped).Debug("Cleared future buffer")
	}
}

func (b *Buffer) report(delta int) {
	if b.gauge != nil {
		b.gauge.Add(int64(delta))
	}
}
