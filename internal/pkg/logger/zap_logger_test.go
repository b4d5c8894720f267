package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_ModuleAndDetails(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewFromZap(zap.New(core))

	l.Warn("history", "record unreadable", map[string]interface{}{
		"session_id": "s1",
		"error":      errors.New("bad json"),
	})
	l.Info("sync", "done", nil)

	entries := logs.All()
	require.Len(t, entries, 2)

	ctx := entries[0].ContextMap()
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "history", ctx["module"])
	assert.Equal(t, "bad json", ctx["error_ref"])
	assert.Equal(t, "sync", entries[1].ContextMap()["module"])
}

func TestZapLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docsearch.log")
	l := NewZapLogger(Options{Level: "info", File: path, Production: true})

	l.Debug("store", "hidden", nil)
	l.Error("store", "visible", map[string]interface{}{"name": "a.txt"})
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "hidden"))
	assert.Contains(t, string(data), `"message":"visible"`)
	assert.Contains(t, string(data), `"module":"store"`)
}
