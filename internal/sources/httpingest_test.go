package sources

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamforge/pipeline/internal/event"
	"github.com/streamforge/pipeline/internal/observability"
	"github.com/streamforge/pipeline/internal/pipeline"
)

func TestHTTPIngestConfigWithDefaults(t *testing.T) {
	cfg := HTTPIngestConfig{}.withDefaults()
	assert.Equal(t, 5*time.Second, cfg.ReadHeaderTimeout)
}

func TestHTTPIngestHandleJSONArray(t *testing.T) {
	s := NewHTTPIngestSource(HTTPIngestConfig{Format: FormatJSONArray}, observability.NewNoOpLogger())
	group := pipeline.New(2, time.Second, observability.NewNoOpLogger())

	body := strings.NewReader(`[{"message":"one"},{"message":"two"}]`)
	req := httptest.NewRequest("POST", "/ingest", body)
	rec := httptest.NewRecorder()

	s.handle(context.Background(), group, rec, req)
	assert.Equal(t, 202, rec.Code)

	var messages []string
	for range 2 {
		work := <-group.Chan()
		work.Process(func(ev event.Event) {
			v, ok := ev.AsLog().Get(event.NewPath(event.RootEvent, event.FieldSegment("message")))
			require.True(t, ok)
			b, _ := v.BytesVal()
			messages = append(messages, string(b))
		})
	}
	assert.ElementsMatch(t, []string{"one", "two"}, messages)
}

func TestHTTPIngestHandleSyslogLines(t *testing.T) {
	s := NewHTTPIngestSource(HTTPIngestConfig{Format: FormatSyslogLines}, observability.NewNoOpLogger())
	group := pipeline.New(1, time.Second, observability.NewNoOpLogger())

	body := strings.NewReader("hello from heroku\n")
	req := httptest.NewRequest("POST", "/ingest", body)
	rec := httptest.NewRecorder()

	s.handle(context.Background(), group, rec, req)
	assert.Equal(t, 202, rec.Code)

	work := <-group.Chan()
	work.Process(func(ev event.Event) {
		v, ok := ev.AsLog().Get(event.NewPath(event.RootEvent, event.FieldSegment("message")))
		require.True(t, ok)
		b, _ := v.BytesVal()
		assert.Equal(t, "hello from heroku", string(b))
	})
}

func TestHTTPIngestHandleRejectsInvalidJSONArray(t *testing.T) {
	s := NewHTTPIngestSource(HTTPIngestConfig{Format: FormatJSONArray}, observability.NewNoOpLogger())
	group := pipeline.New(1, time.Second, observability.NewNoOpLogger())

	req := httptest.NewRequest("POST", "/ingest", strings.NewReader("not json"))
	rec := httptest.NewRecorder()

	s.handle(context.Background(), group, rec, req)
	assert.Equal(t, 400, rec.Code)
}
