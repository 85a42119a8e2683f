package filesource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streamforge/pipeline/internal/observability"
	"github.com/streamforge/pipeline/internal/pipeline"
)

func drainMessages(t *testing.T, ch <-chan pipeline.Work, n int) []string {
	t.Helper()
	var out []string
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case w := <-ch:
			we, ok := w.(pipeline.WorkEvent)
			require.True(t, ok)
			log := we.Event.AsLog()
			require.NotNil(t, log)
			v, ok := log.Fields.Get("message")
			require.True(t, ok)
			s, ok := v.BytesVal()
			require.True(t, ok)
			out = append(out, string(s))
		case <-timeout:
			t.Fatalf("timed out waiting for %d messages, got %d", n, len(out))
		}
	}
	return out
}

func newTestTailer(t *testing.T, opts Options) (*Tailer, pipeline.TaskGroup) {
	t.Helper()
	tg := pipeline.New(16, 0, observability.NewNoOpLogger())
	if opts.CheckpointPath == "" {
		opts.CheckpointPath = filepath.Join(t.TempDir(), "checkpoints.json")
	}
	tailer, err := New(opts, observability.NewNoOpLogger(), tg)
	require.NoError(t, err)
	return tailer, tg
}

func TestTailer_EmitsOneEventPerLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, []byte("first\nsecond\n"), 0o644))

	tailer, tg := newTestTailer(t, Options{
		IncludePatterns:       []string{filepath.Join(dir, "*.log")},
		Fingerprint:           Config{Strategy: FingerprintDevInode},
		ReadLimitBytesPerTick: 1 << 16,
	})

	require.NoError(t, tailer.tick())

	got := drainMessages(t, tg.Chan(), 2)
	require.Equal(t, []string{"first", "second"}, got)
}

func TestTailer_ResumesFromCheckpointAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	checkpointPath := filepath.Join(dir, "checkpoints.json")
	require.NoError(t, os.WriteFile(path, []byte("first\nsecond\n"), 0o644))

	opts := Options{
		IncludePatterns:       []string{filepath.Join(dir, "*.log")},
		Fingerprint:           Config{Strategy: FingerprintDevInode},
		ReadLimitBytesPerTick: 1 << 16,
		CheckpointPath:        checkpointPath,
	}

	tailer, tg := newTestTailer(t, opts)
	require.NoError(t, tailer.tick())
	drainMessages(t, tg.Chan(), 2)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("third\n")
	require.NoError(t, f.Close())
	require.NoError(t, err)

	// Simulate a restart: new Tailer, same checkpoint path.
	tailer2, tg2 := newTestTailer(t, opts)
	require.NoError(t, tailer2.tick())

	got := drainMessages(t, tg2.Chan(), 1)
	require.Equal(t, []string{"third"}, got)
}

func TestTailer_TruncationResetsOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644))

	opts := Options{
		IncludePatterns:       []string{filepath.Join(dir, "*.log")},
		Fingerprint:           Config{Strategy: FingerprintDevInode},
		ReadLimitBytesPerTick: 1 << 16,
	}
	tailer, tg := newTestTailer(t, opts)
	require.NoError(t, tailer.tick())
	drainMessages(t, tg.Chan(), 3)

	require.NoError(t, os.WriteFile(path, []byte("new\n"), 0o644))
	require.NoError(t, tailer.tick())

	got := drainMessages(t, tg.Chan(), 1)
	require.Equal(t, []string{"new"}, got)
}

func TestTailer_RunRespectsContextCancellation(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		IncludePatterns: []string{filepath.Join(dir, "*.log")},
		Fingerprint:     Config{Strategy: FingerprintDevInode},
		TickInterval:    time.Millisecond,
	}
	tailer, _ := newTestTailer(t, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tailer.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
