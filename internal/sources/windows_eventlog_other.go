//go:build !windows

package sources

import (
	"context"

	"github.com/streamforge/pipeline/internal/pipeline"
)

// WindowsEventLogSource is the non-Windows stand-in: it always errors
// out of Run, since there is no Windows Event Log to read on this
// platform.
type WindowsEventLogSource struct{}

func NewWindowsEventLogSource(WindowsEventLogConfig) (*WindowsEventLogSource, error) {
	return nil, ErrWindowsEventLogUnsupported
}

func (s *WindowsEventLogSource) Run(context.Context, pipeline.TaskGroup) error {
	return ErrWindowsEventLogUnsupported
}
