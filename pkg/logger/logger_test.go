package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitAcceptsUnknownLevel(t *testing.T) {
	require.NoError(t, Init("nonsense"))
	require.NotNil(t, Logger())
}

func TestWithModule(t *testing.T) {
	require.NoError(t, Init("debug"))
	require.NotNil(t, WithModule("cache"))
}
