package bus

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunEventSurvivesJSON(t *testing.T) {
	local := NewRunEvent("run.failed", "relay", "run-7", map[string]interface{}{
		"state":  "FAILED",
		"events": 12,
	})
	assert.Equal(t, "run-7", local.RunID)
	assert.Equal(t, 12, local.Int("events"))

	raw, err := json.Marshal(local)
	require.NoError(t, err)
	var remote Event
	require.NoError(t, json.Unmarshal(raw, &remote))

	assert.Equal(t, "run-7", remote.RunID)
	assert.Equal(t, "FAILED", remote.Str("state"))
	assert.Equal(t, 12, remote.Int("events"), "JSON numbers decode as float64")
	assert.Zero(t, remote.Int("missing"))
	assert.Empty(t, remote.Str("events"))
}

func TestNewEventHasNoRun(t *testing.T) {
	e := NewEvent("run.started", "relay", nil)
	assert.NotEmpty(t, e.ID)
	assert.Empty(t, e.RunID)
	assert.Zero(t, e.Int("events"))
}
