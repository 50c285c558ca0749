package profiler

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Carmen-Shannon/prism-go/common"
	"github.com/Carmen-Shannon/prism-go/shader/preprocessor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickRespectsInterval(t *testing.T) {
	var buf bytes.Buffer
	common.SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	defer common.SetLogger(nil)

	p := NewProfiler(time.Hour, nil)
	p.RecordBuild(5*time.Millisecond, false)

	assert.False(t, p.Tick())
	assert.Empty(t, buf.String())
}

func TestTickLogsWindowDeltas(t *testing.T) {
	var buf bytes.Buffer
	common.SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	defer common.SetLogger(nil)

	stats := preprocessor.CacheStats{Hits: 3, Misses: 7}
	p := NewProfiler(time.Millisecond, func() preprocessor.CacheStats { return stats })
	p.RecordBuild(10*time.Millisecond, false)
	p.RecordBuild(20*time.Millisecond, true)
	p.RecordReload()

	time.Sleep(2 * time.Millisecond)
	require.True(t, p.Tick())

	out := buf.String()
	assert.Contains(t, out, "builds=2")
	assert.Contains(t, out, "failures=1")
	assert.Contains(t, out, "avg_build_ms=15")
	assert.Contains(t, out, "reloads=1")
	assert.Contains(t, out, "cache_hits=3")
	assert.Contains(t, out, "cache_misses=7")

	// The next window reports only what happened since the last summary.
	buf.Reset()
	stats = preprocessor.CacheStats{Hits: 5, Misses: 7}
	p.RecordBuild(4*time.Millisecond, false)
	time.Sleep(2 * time.Millisecond)
	require.True(t, p.Tick())

	out = buf.String()
	assert.Contains(t, out, "builds=1")
	assert.Contains(t, out, "failures=0")
	assert.Contains(t, out, "cache_hits=2")
	assert.Contains(t, out, "cache_misses=0")
}

func TestTickWithoutCacheStatsOmitsCacheCounters(t *testing.T) {
	var buf bytes.Buffer
	common.SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	defer common.SetLogger(nil)

	p := NewProfiler(time.Millisecond, nil)
	time.Sleep(2 * time.Millisecond)
	require.True(t, p.Tick())

	out := buf.String()
	assert.Contains(t, out, "builds=0")
	assert.False(t, strings.Contains(out, "cache_hits"))
}
