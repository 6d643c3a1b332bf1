package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigHistoryLimitDefaults(t *testing.T) {
	require.Equal(t, DefaultHistoryLimit, Config{}.withDefaults().HistoryLimit)
	require.Equal(t, DefaultConfig().HistoryLimit, Config{}.withDefaults().HistoryLimit)
	require.Equal(t, 3, Config{HistoryLimit: 3}.withDefaults().HistoryLimit)
	require.Equal(t, -1, Config{HistoryLimit: -1}.withDefaults().HistoryLimit)
}
