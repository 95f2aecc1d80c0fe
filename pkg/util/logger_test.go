package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	for level, want := range map[string]zapcore.Level{
		"":      zapcore.InfoLevel,
		"debug": zapcore.DebugLevel,
		"WARN":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"fatal": zapcore.FatalLevel,
	} {
		l, err := NewLogger(level)
		require.NoError(t, err, level)
		assert.True(t, l.Core().Enabled(want), level)
		assert.False(t, l.Core().Enabled(want-1), level)
	}

	l, err := NewLogger("none")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.FatalLevel))

	_, err = NewLogger("loud")
	assert.Error(t, err)
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("PUMPDEMO_TEST_VALUE", "set")
	assert.Equal(t, "set", GetEnvOrDefault("PUMPDEMO_TEST_VALUE", "fallback"))
	assert.Equal(t, "fallback", GetEnvOrDefault("PUMPDEMO_TEST_UNSET", "fallback"))
}
