package logger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestFileOutputIsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{LogFile: path, MaxSize: 1, Development: true})
	require.NoError(t, err)

	l.WithComponent("cache").Info("hello")
	l.LogError("failed", errors.New("boom"))
	end := l.TrackPerformance("balances")
	end(nil)
	end = l.TrackPerformance("quote")
	end(errors.New("rate limited"))
	require.NoError(t, l.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 6)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "cache", lines[0]["component"])
	assert.NotEmpty(t, lines[0]["timestamp"])
	assert.Equal(t, "boom", lines[1]["error"])
	assert.Equal(t, "balances", lines[2]["operation"])
	assert.NotEmpty(t, lines[2]["correlation_id"])
	assert.Equal(t, lines[2]["correlation_id"], lines[3]["correlation_id"])
	assert.Contains(t, lines[3], "duration_ms")
	assert.Equal(t, "Operation failed", lines[5]["msg"])
	assert.Equal(t, "rate limited", lines[5]["error"])
	assert.NotEqual(t, lines[2]["correlation_id"], lines[5]["correlation_id"])
}

func TestWrapKeepsFileOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{LogFile: path, MaxSize: 1})
	require.NoError(t, err)

	w := Wrap(l.Named("service"))
	w.WithEndpoint("https://rpc.example").Warn("wrapped")
	require.NoError(t, w.Close())
	l.Info("still open")
	require.NoError(t, l.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Equal(t, "service", lines[0]["logger"])
	assert.Equal(t, "https://rpc.example", lines[0]["endpoint"])
}

func TestDebugSuppressedInProduction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{LogFile: path, MaxSize: 1})
	require.NoError(t, err)

	l.Debug("hidden")
	l.WithEndpoint("https://rpc.example").Warn("shown")
	require.NoError(t, l.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "https://rpc.example", lines[0]["endpoint"])
}
