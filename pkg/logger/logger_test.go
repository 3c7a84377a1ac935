package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lastNonEmptyLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}

func TestLogger_IncludesStackAndServiceOnError(t *testing.T) {
	var out bytes.Buffer
	log, closer := New(Options{Level: "info", Out: &out})
	defer closer.Close()

	log.Error().Stack().Err(errors.New("boom")).Msg("something failed")

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(lastNonEmptyLine(out.String())), &payload))
	assert.Equal(t, ServiceName, payload["service"])
	assert.Equal(t, "error", payload["level"])
	assert.Equal(t, "boom", payload["error"])
	assert.Contains(t, payload, "stack")
}

func TestLogger_LevelFilters(t *testing.T) {
	var out bytes.Buffer
	log, _ := New(Options{Level: "warn", Out: &out})

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "shown")
}

func TestLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alarmd.log")
	log, closer := New(Options{Level: "debug", File: path})

	log.Debug().Int64("alarm_id", 3).Msg("[SCHEDULER] armed")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"alarm_id":3`)
	assert.Contains(t, string(data), `"service":"alarmd"`)
}
