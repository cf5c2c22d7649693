package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_FieldsAndLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := New(Options{Core: core}).WithRunID("run-1").With(School("123"), Version(2))

	l.Debug("hidden")
	l.Info("generated", Path("/out/123M15.moe"))
	l.Error("failed", Err(errors.New("disk full")))

	entries := logs.All()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, "run-1", first[RunIDKey])
	assert.Equal(t, "123", first["school_number"])
	assert.Equal(t, int64(2), first["version"])
	assert.Equal(t, "/out/123M15.moe", first["path"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "disk full", entries[1].ContextMap()["error"])
}

func TestErr_NilIsSkipped(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	New(Options{Core: core}).Info("ok", Err(nil))
	assert.NotContains(t, logs.All()[0].ContextMap(), "error")
}

func TestContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	l := Nop()
	assert.Same(t, l, FromContext(WithContext(context.Background(), l)))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelInfo, ParseLevel("loud"))
	assert.Equal(t, "ERROR", LevelError.String())
}
