package relay

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitoutofhere7/japan-post-demo/internal/provider"
	"github.com/gitoutofhere7/japan-post-demo/pkg/protocol"
)

func TestNormalizer_Started(t *testing.T) {
	n := NewNormalizer()
	out, err := n.Apply(provider.Started{RunID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, []protocol.Event{protocol.Status{Message: "TinyFish agent started", RunID: "run-1"}}, out)
}

func TestNormalizer_StreamingURL(t *testing.T) {
	n := NewNormalizer()
	out, err := n.Apply(provider.StreamingURL{Raw: provider.TypeStreamingURL, URL: "https://live/1"})
	require.NoError(t, err)
	assert.Equal(t, []protocol.Event{protocol.BrowserURL{URL: "https://live/1"}}, out)

	out, err = n.Apply(provider.StreamingURL{Raw: provider.TypeBrowserURL})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestNormalizer_ActionsAdvanceAndCap(t *testing.T) {
	n := NewNormalizer()

	out, err := n.Apply(provider.Action{Raw: provider.TypeProgress, Description: "Typing tracking number"})
	require.NoError(t, err)
	want := []protocol.Event{
		protocol.Progress{Progress: 35},
		protocol.Step{Step: protocol.StepNumber(4), Description: "Typing tracking number"},
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("first action mismatch (-want +got):\n%s", diff)
	}

	out, err = n.Apply(provider.Action{Raw: provider.TypeAction})
	require.NoError(t, err)
	assert.Equal(t, protocol.Step{Step: protocol.StepNumber(5), Description: "Performing action..."}, out[1])

	for i := 0; i < 30; i++ {
		_, err = n.Apply(provider.Action{Raw: provider.TypeAction})
		require.NoError(t, err)
	}
	assert.Equal(t, 95, n.Progress())
}

func TestNormalizer_CompleteSuccess(t *testing.T) {
	n := NewNormalizer()
	_, _ = n.Apply(provider.Action{Raw: provider.TypeAction, Description: "click"})

	out, err := n.Apply(provider.Complete{Status: provider.StatusCompleted, Result: json.RawMessage(`{"ok":true}`)})
	require.NoError(t, err)
	want := []protocol.Event{
		protocol.Progress{Progress: 100},
		protocol.Step{Step: protocol.StepNumber(5), Description: "Form filled successfully! (Not submitted)"},
		protocol.Complete{Result: json.RawMessage(`{"ok":true}`)},
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("complete mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, n.Done())

	out, err = n.Apply(provider.Action{Raw: provider.TypeAction})
	assert.NoError(t, err)
	assert.Empty(t, out)
}

func TestNormalizer_Failures(t *testing.T) {
	tests := []struct {
		name string
		in   provider.Event
		want string
	}{
		{name: "complete failed with error", in: provider.Complete{Status: provider.StatusFailed, Error: "captcha"}, want: "captcha"},
		{name: "complete failed without error", in: provider.Complete{Status: provider.StatusFailed}, want: "Automation failed"},
		{name: "complete unknown status", in: provider.Complete{Status: "CANCELLED"}, want: "Automation failed"},
		{name: "error with message", in: provider.Failure{Message: "boom"}, want: "boom"},
		{name: "error without message", in: provider.Failure{}, want: "Unknown error from TinyFish"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNormalizer()
			out, err := n.Apply(tt.in)
			assert.Empty(t, out)

			var failure *ProviderFailure
			require.True(t, errors.As(err, &failure))
			assert.Equal(t, tt.want, failure.Message)
			assert.True(t, n.Done())
		})
	}
}

func TestNormalizer_UnknownIgnored(t *testing.T) {
	n := NewNormalizer()
	out, err := n.Apply(provider.Unknown{Raw: "HEARTBEAT"})
	assert.NoError(t, err)
	assert.Empty(t, out)
	assert.False(t, n.Done())
	assert.Equal(t, 30, n.Progress())
}
