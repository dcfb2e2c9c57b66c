package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/coursevault/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureJSON(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := Get()
	t.Cleanup(func() { SetLogger(prev) })

	var buf bytes.Buffer
	SetLogger(hclog.New(&hclog.LoggerOptions{
		Level:      hclog.Debug,
		Output:     &buf,
		JSONFormat: true,
	}))
	return &buf
}

func TestKeyValueArgs(t *testing.T) {
	buf := captureJSON(t)

	Info("scan finished", "course_id", 7, "created", 3)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "scan finished", entry["@message"])
	assert.Equal(t, float64(7), entry["course_id"])
	assert.Equal(t, float64(3), entry["created"])
}

func TestPrintfArgs(t *testing.T) {
	buf := captureJSON(t)

	Warn("course %d has %s", 4, "no roots")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "course 4 has no roots", entry["@message"])
	assert.Equal(t, "warn", entry["@level"])
}

func TestConfigure(t *testing.T) {
	prev := Get()
	t.Cleanup(func() { SetLogger(prev) })

	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, Configure(config.LoggingConfig{Level: "debug", Format: "json", Output: "file", FilePath: path}))
	assert.True(t, Get().IsDebug())

	assert.Error(t, Configure(config.LoggingConfig{Output: "file"}))
	assert.Error(t, Configure(config.LoggingConfig{Output: "syslog"}))
}
