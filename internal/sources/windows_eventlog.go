package sources

import "errors"

// WindowsEventLogConfig configures the Windows EventLog source.
type WindowsEventLogConfig struct {
	Channel string
}

// ErrWindowsEventLogUnsupported is returned by NewWindowsEventLogSource on
// any non-Windows build. The teacher guards its platform-specific monitors
// (pkg/monitor's NVIDIA/AMD GPU and Trainium stats collectors) the same
// way: a real implementation lives behind a //go:build windows file, and
// every other platform gets a typed error instead of a missing symbol.
var ErrWindowsEventLogUnsupported = errors.New("sources: windows eventlog source is not supported on this platform")
