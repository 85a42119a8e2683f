//go:build !windows

package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindowsEventLogSourceUnsupportedOffWindows(t *testing.T) {
	_, err := NewWindowsEventLogSource(WindowsEventLogConfig{Channel: "Application"})
	assert.ErrorIs(t, err, ErrWindowsEventLogUnsupported)
}
