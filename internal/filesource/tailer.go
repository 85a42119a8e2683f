package filesource

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/streamforge/pipeline/internal/event"
	"github.com/streamforge/pipeline/internal/observability"
	"github.com/streamforge/pipeline/internal/pipeline"
)

// Options configures one file-source task, mirroring spec.md §6's file
// source config object.
type Options struct {
	IncludePatterns []string
	ExcludePatterns []string

	Fingerprint Config

	ReadLimitBytesPerTick int64
	IgnoreOlderSecs       int64
	Multiline             *MultilineConfig

	CheckpointPath string
	TickInterval   time.Duration
}

type fileState struct {
	path         string
	fp           Fingerprint
	offset       int64
	aggregator   *multilineAggregator
	lastModified time.Time
}

// Tailer is the single cooperative task described in spec.md §4.2: a
// periodic tick globs for paths, fingerprints them, reads up to a per-tick
// byte budget, emits Events, and checkpoints progress.
type Tailer struct {
	opts        Options
	logger      *observability.CoreLogger
	sink        pipeline.Submitter
	checkpoints *CheckpointStore

	files map[Fingerprint]*fileState

	shortFiles map[string]bool          // logged-once would-be-short-read paths
	backoff    map[string]time.Time     // permission-denied backoff deadlines
	backoffDur map[string]time.Duration // current backoff duration per path
}

func New(opts Options, logger *observability.CoreLogger, sink pipeline.Submitter) (*Tailer, error) {
	checkpoints, err := LoadCheckpointStore(opts.CheckpointPath)
	if err != nil {
		return nil, err
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	return &Tailer{
		opts:        opts,
		logger:      logger,
		sink:        sink,
		checkpoints: checkpoints,
		files:       make(map[Fingerprint]*fileState),
		shortFiles:  make(map[string]bool),
		backoff:     make(map[string]time.Time),
		backoffDur:  make(map[string]time.Duration),
	}, nil
}

// Run ticks until ctx is cancelled, per spec.md §5's cooperative scheduling:
// blocking I/O happens only within a tick, and the task yields between them.
func (t *Tailer) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return t.checkpoints.Save()
		case <-ticker.C:
			if err := t.tick(); err != nil {
				t.logger.CaptureError(err)
			}
		}
	}
}

func (t *Tailer) tick() error {
	paths, err := t.discoverPaths()
	if err != nil {
		return err
	}

	now := time.Now()
	for _, path := range paths {
		if until, backingOff := t.backoff[path]; backingOff && now.Before(until) {
			continue
		}
		t.tickOne(path, now)
	}

	return t.checkpoints.Save()
}

// discoverPaths expands IncludePatterns and removes anything matching
// ExcludePatterns.
func (t *Tailer) discoverPaths() ([]string, error) {
	seen := make(map[string]bool)
	var out []string

	for _, pattern := range t.opts.IncludePatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			excluded := false
			for _, ex := range t.opts.ExcludePatterns {
				if ok, _ := filepath.Match(ex, m); ok {
					excluded = true
					break
				}
			}
			if !excluded {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func (t *Tailer) tickOne(path string, now time.Time) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Ignored: the checkpoint entry is kept in case the same
			// fingerprint reappears under a different path.
			return
		}
		if errors.Is(err, os.ErrPermission) {
			t.notePermissionDenied(path)
			return
		}
		t.logger.Warn("filesource: stat failed", "path", path, "err", err)
		return
	}

	if t.opts.IgnoreOlderSecs > 0 {
		age := now.Sub(info.ModTime())
		if age > time.Duration(t.opts.IgnoreOlderSecs)*time.Second {
			return
		}
	}

	fp, err := ComputeFingerprint(path, t.opts.Fingerprint)
	if err != nil {
		if errors.Is(err, ErrWouldBeShortRead) {
			if !t.shortFiles[path] {
				t.shortFiles[path] = true
				t.logger.Warn("filesource: file too short to fingerprint yet", "path", path)
			}
			return
		}
		if errors.Is(err, os.ErrPermission) {
			t.notePermissionDenied(path)
			return
		}
		t.logger.Warn("filesource: fingerprint failed", "path", path, "err", err)
		return
	}
	delete(t.shortFiles, path)
	delete(t.backoff, path)
	delete(t.backoffDur, path)

	state, known := t.files[fp]
	if !known {
		state = t.resumeState(path, fp)
		t.files[fp] = state
	}
	state.path = path

	if info.Size() < state.offset {
		// Truncation: spec.md §4.2, reset to the start.
		state.offset = 0
	}

	if err := t.readTick(state, info); err != nil {
		t.logger.Warn("filesource: read failed", "path", path, "err", err)
		return
	}

	state.lastModified = info.ModTime()
	t.checkpoints.Set(fp, CheckpointEntry{
		ByteOffset:   state.offset,
		LastModified: state.lastModified,
		Path:         state.path,
	})
}

// resumeState restores progress from the checkpoint sidecar for a
// newly-seen fingerprint, or starts at offset 0.
func (t *Tailer) resumeState(path string, fp Fingerprint) *fileState {
	state := &fileState{path: path, fp: fp}
	if t.opts.Multiline != nil {
		state.aggregator = newMultilineAggregator(*t.opts.Multiline)
	}
	if entry, ok := t.checkpoints.Get(fp); ok {
		state.offset = entry.ByteOffset
	}
	return state
}

func (t *Tailer) notePermissionDenied(path string) {
	if _, already := t.backoff[path]; already {
		t.backoffDur[path] *= 2
		if t.backoffDur[path] > time.Minute {
			t.backoffDur[path] = time.Minute
		}
	} else {
		t.backoffDur[path] = time.Second
		t.logger.CaptureWarn("filesource: permission denied, backing off", "path", path)
	}
	t.backoff[path] = time.Now().Add(t.backoffDur[path])
}

// readTick reads up to ReadLimitBytesPerTick bytes from state's current
// offset, splits complete lines, and emits one Event per line (or per
// completed multiline group).
func (t *Tailer) readTick(state *fileState, info os.FileInfo) error {
	f, err := os.Open(state.path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(state.offset, 0); err != nil {
		return err
	}

	limit := t.opts.ReadLimitBytesPerTick
	if limit <= 0 {
		limit = 1 << 20
	}

	r := bufio.NewReader(io.LimitReader(f, limit))
	var read int64

	for {
		line, err := r.ReadString('\n')
		if len(line) == 0 && err != nil {
			break
		}
		if err != nil {
			// Partial line at EOF: don't advance past it, so the next
			// tick re-reads it complete.
			break
		}

		read += int64(len(line))
		t.emitLine(state, line[:len(line)-1])

		if read >= limit {
			break
		}
	}

	state.offset += read
	return nil
}

func (t *Tailer) emitLine(state *fileState, line string) {
	if state.aggregator == nil {
		t.submitLine(line)
		return
	}

	if group, ok := state.aggregator.Push(line, time.Now()); ok {
		t.submitLine(joinLines(group))
	}
}

func (t *Tailer) submitLine(message string) {
	log := event.NewLog()
	log.Fields.Set("message", event.Str(message))
	t.sink.Submit(pipeline.WorkFromEvent(event.FromLog(log)))
}

func joinLines(lines []string) string {
	out := lines[0]
	for _, l := range lines[1:] {
		out += "\n" + l
	}
	return out
}
