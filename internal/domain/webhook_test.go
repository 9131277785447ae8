package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhookEvent(t *testing.T) {
	body := []byte(`{"type":"call_ended","call":{"call_id":"c-1","duration_ms":45000,"from_number":"+14155552671"}}`)

	event, err := ParseWebhookEvent(body)
	require.NoError(t, err)
	assert.Equal(t, EventCallEnded, event.Type)
	assert.Equal(t, "c-1", event.Call.CallID)
	assert.Equal(t, int64(45000), event.Call.DurationMs)

	status, ok := event.Status()
	require.True(t, ok)
	assert.Equal(t, CallStatusEnded, status)
}

func TestParseWebhookEventRejectsUnknownType(t *testing.T) {
	_, err := ParseWebhookEvent([]byte(`{"type":"call_teleported","call":{"call_id":"c-1"}}`))
	assert.Error(t, err)
}

func TestParseWebhookEventRejectsMissingCallID(t *testing.T) {
	_, err := ParseWebhookEvent([]byte(`{"type":"call_ended","call":{}}`))
	assert.Error(t, err)
}

func TestParseWebhookEventRejectsMalformedJSON(t *testing.T) {
	_, err := ParseWebhookEvent([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestRecordingReadyDrivesNoStatus(t *testing.T) {
	event, err := ParseWebhookEvent([]byte(`{"type":"recording_ready","call":{"call_id":"c-1"}}`))
	require.NoError(t, err)

	_, ok := event.Status()
	assert.False(t, ok)
}

func TestEventStatusMapping(t *testing.T) {
	cases := map[EventType]CallStatus{
		EventCallStarted:       CallStatusConnected,
		EventCallQueued:        CallStatusQueued,
		EventCallRinging:       CallStatusRinging,
		EventCallFailed:        CallStatusFailed,
		EventCallNoAnswer:      CallStatusNoAnswer,
		EventCallBusy:          CallStatusBusy,
		EventVoicemailDetected: CallStatusVoicemail,
	}
	for eventType, want := range cases {
		e := &WebhookEvent{Type: eventType}
		got, ok := e.Status()
		require.True(t, ok, "event %s", eventType)
		assert.Equal(t, want, got)
	}
}

func TestCallStatusClassification(t *testing.T) {
	for _, s := range []CallStatus{CallStatusQueued, CallStatusRinging, CallStatusConnected} {
		assert.True(t, s.IsActive(), "%s active", s)
		assert.False(t, s.IsTerminal(), "%s not terminal", s)
	}
	for _, s := range []CallStatus{CallStatusEnded, CallStatusFailed, CallStatusNoAnswer, CallStatusBusy, CallStatusVoicemail} {
		assert.True(t, s.IsTerminal(), "%s terminal", s)
		assert.False(t, s.IsActive(), "%s not active", s)
	}
	assert.False(t, KnownStatus(CallStatus("levitating")))
}
