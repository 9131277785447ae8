package domain

import (
	"encoding/json"
	"fmt"
)

// EventType discriminates telephony webhook events. The set is closed:
// payloads carrying any other type are rejected at the boundary.
type EventType string

const (
	EventCallStarted       EventType = "call_started"
	EventCallEnded         EventType = "call_ended"
	EventCallQueued        EventType = "call_queued"
	EventCallRinging       EventType = "call_ringing"
	EventCallFailed        EventType = "call_failed"
	EventCallNoAnswer      EventType = "call_no_answer"
	EventCallBusy          EventType = "call_busy"
	EventVoicemailDetected EventType = "voicemail_detected"
	EventRecordingReady    EventType = "recording_ready"
)

// CallPayload is the nested call object carried by every webhook event.
type CallPayload struct {
	CallID              string `json:"call_id"`
	AgentID             string `json:"agent_id,omitempty"`
	FromNumber          string `json:"from_number,omitempty"`
	ToNumber            string `json:"to_number,omitempty"`
	DurationMs          int64  `json:"duration_ms,omitempty"`
	DisconnectionReason string `json:"disconnection_reason,omitempty"`
	Transcript          string `json:"transcript,omitempty"`
	Metadata            JSONB  `json:"metadata,omitempty"`
}

// WebhookEvent is a telephony provider event as delivered to the webhook
// endpoint.
type WebhookEvent struct {
	Type EventType   `json:"type"`
	Call CallPayload `json:"call"`
}

// statusByEvent maps lifecycle events to the status they drive. Events
// absent from the map (recording_ready) do not move the state machine.
var statusByEvent = map[EventType]CallStatus{
	EventCallStarted:       CallStatusConnected,
	EventCallEnded:         CallStatusEnded,
	EventCallQueued:        CallStatusQueued,
	EventCallRinging:       CallStatusRinging,
	EventCallFailed:        CallStatusFailed,
	EventCallNoAnswer:      CallStatusNoAnswer,
	EventCallBusy:          CallStatusBusy,
	EventVoicemailDetected: CallStatusVoicemail,
}

// Status returns the call status this event drives, if any.
func (e *WebhookEvent) Status() (CallStatus, bool) {
	s, ok := statusByEvent[e.Type]
	return s, ok
}

// ParseWebhookEvent decodes and validates a raw webhook payload. Unknown
// event types and events missing a call id are rejected here so downstream
// code only ever sees well-formed members of the union.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}

	switch event.Type {
	case EventCallStarted, EventCallEnded, EventCallQueued, EventCallRinging,
		EventCallFailed, EventCallNoAnswer, EventCallBusy,
		EventVoicemailDetected, EventRecordingReady:
	default:
		return nil, fmt.Errorf("unknown webhook event type %q", event.Type)
	}

	if event.Call.CallID == "" {
		return nil, fmt.Errorf("webhook event %q missing call_id", event.Type)
	}

	return &event, nil
}
