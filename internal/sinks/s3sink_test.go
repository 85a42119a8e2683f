package sinks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestS3ConfigWithDefaults(t *testing.T) {
	cfg := S3Config{Bucket: "b"}.withDefaults()
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
}

func TestS3ConfigWithDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := S3Config{Bucket: "b", BatchSize: 10, BatchTimeout: time.Second}.withDefaults()
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, time.Second, cfg.BatchTimeout)
}
