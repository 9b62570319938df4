package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPairs(t *testing.T) {
	require.Nil(t, pairs(nil))
	require.Equal(t, []string{"kind:bid", "result:stale"}, pairs([]string{"kind", "bid", "result", "stale"}))
	require.Panics(t, func() { pairs([]string{"odd"}) })
}

func TestLogSinkBackend(t *testing.T) {
	// metrics.enabled is unset so bumps land on the log sink
	m := New("test")
	require.NotPanics(t, func() {
		m.BumpSum("reconcile.stale", 1, "kind", "bid")
		m.BumpAvg("cache.size", 3)
		m.BumpHistogram("stream.items", 10)
		m.BumpTime("query.time").End()
	})
}

func TestBadTagsDoNotPanic(t *testing.T) {
	m := New("test", WithoutPodName(), WithSampleRate(0.5))
	require.NotPanics(t, func() {
		m.BumpSum("odd", 1, "kind")
		m.BumpTime("odd", "kind").End()
	})
}

func TestNop(t *testing.T) {
	m := NewNop()
	m.BumpSum("a", 1)
	m.BumpTime("b").End()
}
