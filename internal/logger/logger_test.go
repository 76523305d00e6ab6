package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		encoding string
		want     zapcore.Level
	}{
		{"debug console", "debug", "console", zap.DebugLevel},
		{"warn json", "warn", "json", zap.WarnLevel},
		{"unknown level falls back to info", "loud", "json", zap.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.level, tt.encoding)
			require.NoError(t, err)

			assert.True(t, log.Core().Enabled(tt.want))
			if tt.want > zap.DebugLevel {
				assert.False(t, log.Core().Enabled(tt.want-1))
			}
		})
	}
}

func TestNew_UnknownEncoding(t *testing.T) {
	_, err := New("info", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"xml"`)
}
