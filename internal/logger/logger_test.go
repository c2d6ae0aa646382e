package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeKVs(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"job_token", "6f1c",
		"password", "hunter2",
		"Authorization", "Bearer abc",
		"session_token", "eyJ",
		"worker", "Alice",
		"dangling",
	})
	assert.Equal(t, []interface{}{
		"job_token", "6f1c",
		"password", "[REDACTED]",
		"Authorization", "[REDACTED]",
		"session_token", "[REDACTED]",
		"worker", "Alice",
		"dangling",
	}, out)
}

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.With("request_id", "r-1").Info("job claimed", "secret", "x")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		ctx := entries[0].ContextMap()
		assert.Equal(t, "r-1", ctx["request_id"])
		assert.Equal(t, "[REDACTED]", ctx["secret"])
	}
}
