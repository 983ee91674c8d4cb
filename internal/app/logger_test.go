package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("text format drops the time attribute", func(t *testing.T) {
		var out bytes.Buffer
		logger := newLogger("info", "text", &out)

		logger.Info("Build finished.", "builder", "deb-x86_64")

		line := out.String()
		assert.Contains(t, line, "msg=\"Build finished.\"")
		assert.Contains(t, line, "builder=deb-x86_64")
		assert.NotContains(t, line, "time=")
	})

	t.Run("json format keeps the time attribute", func(t *testing.T) {
		var out bytes.Buffer
		logger := newLogger("info", "json", &out)

		logger.Info("Build finished.")

		var record map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &record))
		assert.Contains(t, record, "time")
		assert.Equal(t, "Build finished.", record["msg"])
	})

	t.Run("level filters records", func(t *testing.T) {
		var out bytes.Buffer
		logger := newLogger("warn", "text", &out)

		logger.Info("Invisible.")
		logger.Warn("Visible.")

		assert.NotContains(t, out.String(), "Invisible.")
		assert.Contains(t, out.String(), "Visible.")
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		var out bytes.Buffer
		logger := newLogger("shouting", "text", &out)

		logger.Debug("Invisible.")
		logger.Info("Visible.")

		assert.NotContains(t, out.String(), "Invisible.")
		assert.Contains(t, out.String(), "Visible.")
	})
}
