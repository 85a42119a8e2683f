package pipeline

import (
	"fmt"

	"github.com/streamforge/pipeline/internal/event"
)

// Work is a task flowing through a component's Source->Transform->Sink
// stage, per spec.md §5. Most work carries an Event; sentinels exist for
// internal synchronization (barriers, flush requests) that must be ordered
// with respect to event processing but carry no event of their own.
type Work interface {
	// Accept indicates the work has entered the stage's queue.
	//
	// It returns true if the work should continue to Process, and false if
	// handling is already complete (for example, a sentinel that only
	// unblocks a waiter).
	//
	// This should return quickly: it runs inline with ingestion and blocks
	// further work from being accepted if it's slow.
	Accept(func(event.Event)) bool

	// Process performs the work: running it through a transform, handing it
	// to a sink, or whatever the stage does.
	Process(func(event.Event))

	// DebugInfo returns a short string describing the work, suitable for
	// logging.
	DebugInfo() string
}

// WorkEvent wraps a single Event for the pipeline.
type WorkEvent struct {
	Event event.Event
}

func WorkFromEvent(e event.Event) Work {
	return WorkEvent{Event: e}
}

func (w WorkEvent) Accept(fn func(event.Event)) bool {
	fn(w.Event)
	return true
}

func (w WorkEvent) Process(fn func(event.Event)) {
	fn(w.Event)
}

func (w WorkEvent) DebugInfo() string {
	return fmt.Sprintf("WorkEvent(%s)", w.Event.Kind())
}

// workSentinel is a Work item used for synchronization, e.g. to implement a
// "flush and wait" barrier: push a sentinel after a batch of events and
// block until it comes out the other end of the stage.
type workSentinel struct{ value any }

// NewSentinel returns a Work item holding the given sentinel value. Its
// methods are no-ops except Sentinel(), which returns the given value.
func NewSentinel(value any) Work {
	return &workSentinel{value}
}

func (s *workSentinel) Accept(func(event.Event)) bool { return true }

func (s *workSentinel) Process(func(event.Event)) {}

func (s *workSentinel) Sentinel() any { return s.value }

func (s *workSentinel) DebugInfo() string {
	return fmt.Sprintf("WorkSentinel(%v)", s.value)
}
