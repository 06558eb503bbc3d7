package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	log, err := New(Options{Level: "debug", Encoding: "json"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log, err = New(Options{Level: "nonsense", Encoding: "console"})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
}

func TestMaskAuthorization(t *testing.T) {
	assert.Equal(t, "Bearer ****1234", MaskAuthorization("Bearer abcdef1234"))
	assert.Equal(t, "****1234", MaskAuthorization("abcdef1234"))
	assert.Equal(t, "", MaskAuthorization("  "))
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****wxyz", MaskAPIKey("abcdefwxyz"))
	assert.Equal(t, "****", MaskAPIKey("abc"))
	assert.Equal(t, "", MaskAPIKey(""))
}
