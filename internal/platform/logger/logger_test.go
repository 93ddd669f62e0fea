package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventlearn/progress-sync/internal/config"
)

func TestSetupEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	log := setup(config.LogConfig{Level: "info"}, &buf)

	log.Info("engine started", "backend", "memory")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "engine started", entry["msg"])
	assert.Equal(t, "memory", entry["backend"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestSetupRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := setup(config.LogConfig{Level: "warn"}, &buf)

	log.Info("suppressed")
	log.Warn("kept")

	assert.NotContains(t, buf.String(), "suppressed")
	assert.Contains(t, buf.String(), "kept")
}

func TestSetupInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := setup(config.LogConfig{Level: "loud"}, &buf)

	log.Debug("hidden at info")
	log.Info("visible")

	assert.NotContains(t, buf.String(), "hidden at info")
	assert.Contains(t, buf.String(), "visible")
}
