package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactsSecrets(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromCore(core)

	log.Info("configured", "api_token", "abc-123", "Authorization", "Bearer abc", "user", "kat",
		"headers", map[string]interface{}{"authorization": "x", "accept": "json"})

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["api_token"])
	assert.Equal(t, "[REDACTED]", fields["Authorization"])
	assert.Equal(t, "kat", fields["user"])
	headers := fields["headers"].(map[string]interface{})
	assert.Equal(t, "[REDACTED]", headers["authorization"])
	assert.Equal(t, "json", headers["accept"])
}

func TestRedactionCanBeDisabled(t *testing.T) {
	t.Setenv("LOG_REDACTION_ENABLED", "false")
	core, logs := observer.New(zapcore.DebugLevel)
	FromCore(core).With("token", "abc").Warn("raw")

	require.Len(t, logs.All(), 1)
	assert.Equal(t, "abc", logs.All()[0].ContextMap()["token"])
}

func TestOrNop(t *testing.T) {
	l := OrNop(nil)
	require.NotNil(t, l)
	l.Error("dropped", "k", 1)
	l.Sync()
}
