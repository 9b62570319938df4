package log

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithFieldDoesNotShareBacking(t *testing.T) {
	base := Log().WithField("a", 1)
	l1 := base.WithField("b", 2)
	l2 := base.WithField("c", 3)

	require.Equal(t, []interface{}{"a", 1, "b", 2}, l1.fields)
	require.Equal(t, []interface{}{"a", 1, "c", 3}, l2.fields)
}

func TestWithFieldsIsOrdered(t *testing.T) {
	l := Log().WithFields(Fields{"tag": "market", "block": 12, "err": nil})
	require.Equal(t, []interface{}{"block", 12, "err", nil, "tag", "market"}, l.fields)
}

func TestInitLevel(t *testing.T) {
	require.NoError(t, Init(Config{Level: "debug"}))
	require.Error(t, Init(Config{Level: "loud"}))
	require.NoError(t, Init(Config{}))
}

func TestInitKeepsRootOnError(t *testing.T) {
	before := root.Load()
	require.Error(t, Init(Config{Level: "loud"}))
	require.Same(t, before, root.Load())
	require.Same(t, before, Log().z)
}

func TestInitRejectsBadDsn(t *testing.T) {
	require.Error(t, Init(Config{SentryDSN: "not a dsn"}))
}
