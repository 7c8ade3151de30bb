package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/xhad/printdesk/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		enabled zapcore.Level
		hidden  zapcore.Level
		wantErr bool
	}{
		{name: "info", cfg: config.LogConfig{Level: "info"}, enabled: zapcore.InfoLevel, hidden: zapcore.DebugLevel},
		{name: "debug development", cfg: config.LogConfig{Level: "debug", Development: true}, enabled: zapcore.DebugLevel, hidden: zapcore.DebugLevel - 1},
		{name: "warn", cfg: config.LogConfig{Level: "WARN"}, enabled: zapcore.WarnLevel, hidden: zapcore.InfoLevel},
		{name: "bad level", cfg: config.LogConfig{Level: "chatty"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.enabled))
			assert.False(t, l.Core().Enabled(tt.hidden))
		})
	}
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
