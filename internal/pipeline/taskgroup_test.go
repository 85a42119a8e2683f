package pipeline_test

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/streamforge/pipeline/internal/event"
	"github.com/streamforge/pipeline/internal/observability"
	"github.com/streamforge/pipeline/internal/pipeline"
)

func testEvent() event.Event {
	return event.FromLog(event.NewLog())
}

func TestSubmitConcurrent(t *testing.T) {
	count := 0
	tg := pipeline.New(0, 0, observability.NewNoOpLogger())
	wgConsumer := &sync.WaitGroup{}
	wgConsumer.Add(1)
	go func() {
		defer wgConsumer.Done()
		for range tg.Chan() {
			count++
		}
	}()

	wgProducer := &sync.WaitGroup{}
	for range 5 {
		wgProducer.Add(1)
		go func() {
			defer wgProducer.Done()
			for range 100 {
				tg.Submit(pipeline.WorkFromEvent(testEvent()))
			}
		}()
	}
	wgProducer.Wait()
	tg.SetDone()
	tg.Close()
	wgConsumer.Wait()

	assert.Equal(t, 5*100, count)
}

func TestSubmitAfterClose(t *testing.T) {
	logs := bytes.Buffer{}
	logger := observability.NewCoreLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{})), nil)
	tg := pipeline.New(0, 0, logger)

	tg.SetDone()
	tg.Close()
	tg.Submit(pipeline.WorkFromEvent(testEvent()))

	assert.Contains(t, logs.String(), "pipeline: ignoring work submitted after close")
}

func TestCloseDuringSubmit(t *testing.T) {
	logs := bytes.Buffer{}
	logger := observability.NewCoreLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{})), nil)
	tg := pipeline.New(0, 0, logger)

	go func() {
		<-time.After(5 * time.Millisecond)
		tg.SetDone()
		tg.Close()
	}()
	tg.Submit(pipeline.WorkFromEvent(testEvent()))
	<-tg.Chan()

	assert.Contains(t, logs.String(), "pipeline: ignoring work submitted after close")
}

func TestCloseAfterClose(t *testing.T) {
	tg := pipeline.New(0, 0, observability.NewNoOpLogger())

	tg.SetDone()
	tg.SetDone()
	tg.Close()
	tg.Close()
}

func TestDeadlineCtxCancelledOnClose(t *testing.T) {
	tg := pipeline.New(0, time.Millisecond, observability.NewNoOpLogger())

	go func() {
		tg.SetDone()
		tg.Close()
	}()
	<-tg.DrainDeadlineCtx().Done()

	assert.Error(t, tg.DrainDeadlineCtx().Err())
}

func TestCloseBlocksUntilDone(t *testing.T) {
	tg := pipeline.New(0, 0, observability.NewNoOpLogger())
	wg := &sync.WaitGroup{}
	count := 0

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range tg.Chan() {
			count++
		}
	}()

	go tg.Close()
	for range 10 {
		<-time.After(time.Millisecond)
		tg.Submit(pipeline.WorkFromEvent(testEvent()))
	}
	tg.SetDone()
	wg.Wait()

	assert.Equal(t, 10, count)
}
