package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routefs/routefs/internal/util"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     LogConfig
		wantErr bool
	}{
		{name: "defaults", cfg: DefaultLogConfig()},
		{name: "console format", cfg: LogConfig{Level: "debug", Format: "console", Output: "stderr"}},
		{name: "invalid level", cfg: LogConfig{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
			logger.Info("hello", String("k", "v"))
		})
	}
}

func TestWithContext(t *testing.T) {
	t.Parallel()

	logger := NopLogger()

	t.Run("empty context returns same logger", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, logger, logger.WithContext(context.Background()))
	})

	t.Run("request fields attach", func(t *testing.T) {
		t.Parallel()
		ctx := util.ContextWithRequestID(context.Background(), "req-1")
		ctx = util.ContextWithRoute(ctx, "/hello/[name]")
		enriched := logger.WithContext(ctx)
		assert.NotNil(t, enriched)
		enriched.Info("ok")
	})
}

func TestGlobalLogger(t *testing.T) {
	logger := NopLogger()
	SetGlobalLogger(logger)
	assert.Equal(t, logger, GetGlobalLogger())
	assert.Equal(t, logger, L())
}
