package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalWireFormat(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{name: "status", event: Status{Message: "Starting TinyFish agent..."}, want: `{"type":"STATUS","message":"Starting TinyFish agent..."}`},
		{name: "status with run id", event: Status{Message: "started", RunID: "r1"}, want: `{"type":"STATUS","message":"started","runId":"r1"}`},
		{name: "progress", event: Progress{Progress: 30}, want: `{"type":"PROGRESS","progress":30}`},
		{name: "progress zero", event: Progress{}, want: `{"type":"PROGRESS","progress":0}`},
		{name: "numbered step", event: Step{Step: StepNumber(4), Description: "typing name"}, want: `{"type":"STEP","step":4,"description":"typing name"}`},
		{name: "labelled step", event: Step{Step: StepLabel("Final"), Description: "done"}, want: `{"type":"STEP","step":"Final","description":"done"}`},
		{name: "browser url", event: BrowserURL{URL: "https://live.example/1"}, want: `{"type":"BROWSER_URL","url":"https://live.example/1"}`},
		{name: "screenshot", event: Screenshot{Image: "aGVsbG8="}, want: `{"type":"SCREENSHOT","image":"aGVsbG8="}`},
		{name: "complete with result", event: Complete{Result: json.RawMessage(`{"ok":true}`)}, want: `{"type":"COMPLETE","result":{"ok":true}}`},
		{name: "complete without result", event: Complete{}, want: `{"type":"COMPLETE"}`},
		{name: "error", event: Error{Message: "quota exceeded"}, want: `{"type":"ERROR","message":"quota exceeded"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Marshal(tt.event)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))

			back, err := Unmarshal(got)
			require.NoError(t, err)
			assert.Equal(t, tt.event, back)
		})
	}
}

func TestUnmarshalUnknownKind(t *testing.T) {
	_, err := Unmarshal([]byte(`{"type":"HEARTBEAT"}`))

	var unknown *UnknownKindError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, Kind("HEARTBEAT"), unknown.Kind)
}

func TestUnmarshalMalformed(t *testing.T) {
	_, err := Unmarshal([]byte(`{"type":"PROGRESS"`))
	assert.Error(t, err)

	_, err = Unmarshal([]byte(`{"type":"STEP","step":true}`))
	assert.Error(t, err)
}

func TestCompleteNullResult(t *testing.T) {
	ev, err := Unmarshal([]byte(`{"type":"COMPLETE","result":null}`))
	require.NoError(t, err)
	assert.Equal(t, Complete{}, ev)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(Complete{}))
	assert.True(t, IsTerminal(Error{Message: "x"}))
	assert.False(t, IsTerminal(Progress{Progress: 100}))
	assert.False(t, IsTerminal(Status{}))
}

func TestStepIDString(t *testing.T) {
	assert.Equal(t, "3", StepNumber(3).String())
	assert.Equal(t, "Error", StepLabel("Error").String())
}
