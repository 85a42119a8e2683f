package sources

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestS3ConfigWithDefaults(t *testing.T) {
	cfg := S3Config{Bucket: "b"}.withDefaults()
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
}

func TestS3ConfigWithDefaultsPreservesExplicitValue(t *testing.T) {
	cfg := S3Config{Bucket: "b", PollInterval: time.Minute}.withDefaults()
	assert.Equal(t, time.Minute, cfg.PollInterval)
}
