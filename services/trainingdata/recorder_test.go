package trainingdata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outreachloop/followup/internal/enum"
	"github.com/outreachloop/followup/internal/logger"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func TestRecord_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "training.jsonl")
	recorder := NewRecorder(path, getLogger())

	recorder.Record("I'm interested,\n  tell me more.", enum.IntentInterested)
	recorder.Record("Not for me, thanks.", enum.IntentNotInterested)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first sample
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	// Whitespace is collapsed so one sample stays one line.
	assert.Equal(t, "I'm interested, tell me more.", first.EmailText)
	assert.Equal(t, "INTERESTED", first.IntentLabel)
	assert.NotEmpty(t, first.RecordedAt)
}

func TestRecord_SkipsEmptySamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "training.jsonl")
	recorder := NewRecorder(path, getLogger())

	recorder.Record("   ", enum.IntentInterested)
	recorder.Record("real body here", "")

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
