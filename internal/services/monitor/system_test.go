package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollect(t *testing.T) {
	stats := Collect(context.Background(), t.TempDir(), time.Now().Add(-time.Hour))

	assert.Positive(t, stats.Cores)
	assert.Positive(t, stats.GoRoutines)
	assert.Equal(t, "1 hour ago", stats.ProcessSince)
	assert.GreaterOrEqual(t, stats.CPUPercent, 0.0)
}

func TestCollect_NoDiskPath(t *testing.T) {
	stats := Collect(context.Background(), "", time.Now())
	assert.Empty(t, stats.DiskFree)
}
