// Package pipeline implements the cooperative scheduling model of
// spec.md §5: sources, transforms, and sinks run as independent tasks
// connected by bounded channels of Work, with a shared shutdown contract
// (stop accepting, drain in-flight work up to a deadline, mark stragglers
// Errored).
//
// The channel and cancellation plumbing is grounded on the teacher's
// internal/runwork package (a Work channel that tolerates being closed more
// than once and never panics on late sends), generalized from wrapping a
// wire protocol record to wrapping spec.md's Event.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/streamforge/pipeline/internal/observability"
)

var errWorkAfterClose = errors.New("pipeline: ignoring work submitted after close")

// Submitter is the subset of TaskGroup a producer needs to hand off Work.
type Submitter interface {
	// Submit adds work to the group's queue.
	//
	// If called after Close has begun draining, the work is dropped and
	// logged; it is never silently lost without a log record.
	Submit(work Work)

	// SubmitOrCancel is like Submit but exits early if cancel is closed.
	SubmitOrCancel(cancel <-chan struct{}, work Work)

	// DrainDeadlineCtx is cancelled once the configured shutdown deadline
	// elapses. Long-running sinks should treat its cancellation as a signal
	// to abandon in-flight sends and mark them Errored.
	DrainDeadlineCtx() context.Context
}

// TaskGroup is the bounded channel of Work connecting one pipeline stage to
// the next, implementing spec.md §5's cancellation and drain contract.
type TaskGroup interface {
	Submitter

	// Chan returns the channel of work for this stage.
	Chan() <-chan Work

	// SetDone marks the producer side finished, allowing Close to proceed.
	SetDone()

	// Close stops accepting new work, waits for in-flight Submit calls to
	// return, and closes the output channel. Safe to call concurrently or
	// more than once; blocks until SetDone has been called.
	Close()
}

type taskGroup struct {
	submitCount int        // number of goroutines inside Submit/SubmitOrCancel
	submitCV    *sync.Cond // signalled when submitCount drops to 0

	closedMu sync.Mutex
	closed   chan struct{}

	doneMu sync.Mutex
	done   chan struct{}

	work            chan Work
	drainDeadlineCtx context.Context
	cancelDeadline   func()

	logger *observability.CoreLogger
}

// New returns a TaskGroup with the given channel capacity. drainDeadline is
// how long after Close begins DrainDeadlineCtx is cancelled, per spec.md
// §5's "abandoned after a configured deadline" rule; Close itself waits for
// in-flight Submit calls without a time bound.
func New(bufferSize int, drainDeadline time.Duration, logger *observability.CoreLogger) TaskGroup {
	ctx, cancelCtx := context.WithCancel(context.Background())
	// Close calls cancel, which starts the drain deadline.
	cancel := func() { time.AfterFunc(largeIfZero(drainDeadline), cancelCtx) }

	return &taskGroup{
		submitCV:         sync.NewCond(&sync.Mutex{}),
		closed:           make(chan struct{}),
		done:             make(chan struct{}),
		work:             make(chan Work, bufferSize),
		drainDeadlineCtx: ctx,
		cancelDeadline:   cancel,
		logger:           logger,
	}
}

// largeIfZero treats a zero deadline as "no deadline" by using a duration
// long enough to never practically fire.
func largeIfZero(d time.Duration) time.Duration {
	if d <= 0 {
		return 365 * 24 * time.Hour
	}
	return d
}

func (tg *taskGroup) incSubmit() {
	tg.submitCV.L.Lock()
	defer tg.submitCV.L.Unlock()
	tg.submitCount++
}

func (tg *taskGroup) decSubmit() {
	tg.submitCV.L.Lock()
	defer tg.submitCV.L.Unlock()
	tg.submitCount--
	if tg.submitCount == 0 {
		tg.submitCV.Broadcast()
	}
}

func (tg *taskGroup) Submit(work Work) {
	tg.SubmitOrCancel(nil, work)
}

func (tg *taskGroup) SubmitOrCancel(cancel <-chan struct{}, work Work) {
	tg.incSubmit()
	defer tg.decSubmit()

	select {
	case <-cancel:
		return
	case <-tg.closed:
		tg.logger.Warn(errWorkAfterClose.Error(), "work", work.DebugInfo())
		return
	default:
	}

	// If we race with Close here, Close blocks on its submitCV wait until
	// we return, so `work` is guaranteed to land in tg.work or be dropped
	// above, never lost silently.

	select {
	case <-tg.closed:
		tg.logger.CaptureError(errWorkAfterClose, "work", work.DebugInfo())
	case <-cancel:
	case tg.work <- work:
	}
}

func (tg *taskGroup) DrainDeadlineCtx() context.Context {
	return tg.drainDeadlineCtx
}

func (tg *taskGroup) Chan() <-chan Work {
	return tg.work
}

func (tg *taskGroup) SetDone() {
	tg.doneMu.Lock()
	defer tg.doneMu.Unlock()

	select {
	case <-tg.done:
	default:
		close(tg.done)
	}
}

func (tg *taskGroup) Close() {
	<-tg.done

	tg.closedMu.Lock()
	select {
	case <-tg.closed:
		tg.closedMu.Unlock()
		return
	default:
	}

	tg.cancelDeadline()
	close(tg.closed)
	tg.closedMu.Unlock()

	tg.submitCV.L.Lock()
	for tg.submitCount > 0 {
		tg.submitCV.Wait()
	}
	close(tg.work)
	tg.submitCV.L.Unlock()
}
