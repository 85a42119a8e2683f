//go:build windows

package sources

import (
	"context"
	"errors"

	"github.com/streamforge/pipeline/internal/pipeline"
)

// WindowsEventLogSource is the Windows build of the Event Log source. Its
// Run returns an error and reads no events.
//
// TODO: wire golang.org/x/sys/windows's eventlog subscription API
// (EvtSubscribe) here; this build currently only proves out the
// platform-gating shape described in SPEC_FULL.md §B.
type WindowsEventLogSource struct {
	cfg WindowsEventLogConfig
}

func NewWindowsEventLogSource(cfg WindowsEventLogConfig) (*WindowsEventLogSource, error) {
	return &WindowsEventLogSource{cfg: cfg}, nil
}

func (s *WindowsEventLogSource) Run(context.Context, pipeline.TaskGroup) error {
	return errors.New("sources: windows eventlog reading is not yet implemented")
}
