package filesource

import (
	"regexp"
	"time"
)

// MultilineConfig groups consecutive lines into one logical record when a
// start pattern is configured, per spec.md §4.2. Without a MultilineConfig,
// every newline-delimited line is its own Event.
type MultilineConfig struct {
	StartPattern    *regexp.Regexp
	ContinuePattern *regexp.Regexp
	Timeout         time.Duration
}

// multilineAggregator buffers lines belonging to one logical record until a
// new start-pattern match, the continue-pattern stops matching, or the
// timeout elapses.
type multilineAggregator struct {
	cfg     MultilineConfig
	lines   []string
	started time.Time
}

func newMultilineAggregator(cfg MultilineConfig) *multilineAggregator {
	return &multilineAggregator{cfg: cfg}
}

// Push adds a line, returning a completed group (if the new line starts one
// and a prior group was pending) along with whether a group was returned.
func (m *multilineAggregator) Push(line string, now time.Time) (completed []string, ok bool) {
	isStart := m.cfg.StartPattern == nil || m.cfg.StartPattern.MatchString(line)
	continues := len(m.lines) > 0 &&
		(m.cfg.ContinuePattern == nil || m.cfg.ContinuePattern.MatchString(line)) &&
		!isStart

	if continues && !m.timedOut(now) {
		m.lines = append(m.lines, line)
		return nil, false
	}

	completed, ok = m.flush()
	m.lines = append(m.lines, line)
	m.started = now
	return completed, ok
}

// Flush forces out any pending group, e.g. at EOF or shutdown.
func (m *multilineAggregator) Flush() ([]string, bool) {
	return m.flush()
}

func (m *multilineAggregator) flush() ([]string, bool) {
	if len(m.lines) == 0 {
		return nil, false
	}
	out := m.lines
	m.lines = nil
	return out, true
}

func (m *multilineAggregator) timedOut(now time.Time) bool {
	if m.cfg.Timeout <= 0 || m.started.IsZero() {
		return false
	}
	return now.Sub(m.started) > m.cfg.Timeout
}
