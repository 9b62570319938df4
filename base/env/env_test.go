package env

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFallbacks(t *testing.T) {
	t.Setenv("ENV_NAME", "")
	t.Setenv("APP_NAME", "tracker")
	require.Equal(t, "local", EnvName())
	require.Equal(t, "tracker", AppName())
}
