package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInit_Levels(t *testing.T) {
	t.Cleanup(func() { SetLogger(zap.NewNop()) })

	for _, lvl := range []string{"debug", "info", "WARN", " error "} {
		assert.NoError(t, Init(lvl), lvl)
	}
	assert.Error(t, Init("chatty"))
}

func TestSetLogger(t *testing.T) {
	t.Cleanup(func() { SetLogger(zap.NewNop()) })

	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))

	L().Infof("Loader: %d records", 3)
	L().Debugf("hidden")
	L().Warnf("Diagnostics: %s flagged", "sigma")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "Loader: 3 records", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}
