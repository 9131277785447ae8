package domain

import (
	"time"
)

// CallStatus is the lifecycle state of a call.
type CallStatus string

const (
	CallStatusQueued    CallStatus = "queued"
	CallStatusRinging   CallStatus = "ringing"
	CallStatusConnected CallStatus = "connected"
	CallStatusEnded     CallStatus = "ended"
	CallStatusFailed    CallStatus = "failed"
	CallStatusNoAnswer  CallStatus = "no_answer"
	CallStatusBusy      CallStatus = "busy"
	CallStatusVoicemail CallStatus = "voicemail"
)

// IsTerminal reports whether no further automatic transition occurs for this
// call id. Note that busy and voicemail are terminal for the current record
// but trigger a new call record via retry/follow-up.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusEnded, CallStatusFailed, CallStatusNoAnswer, CallStatusBusy, CallStatusVoicemail:
		return true
	}
	return false
}

// IsActive reports whether the call is still in flight.
func (s CallStatus) IsActive() bool {
	switch s {
	case CallStatusQueued, CallStatusRinging, CallStatusConnected:
		return true
	}
	return false
}

// KnownStatus reports whether s is a member of the status enum.
func KnownStatus(s CallStatus) bool {
	return s.IsTerminal() || s.IsActive()
}

// CallRecord represents one call attempt, inbound or outbound.
type CallRecord struct {
	ID               string     `json:"id" gorm:"type:uuid;primaryKey"`
	CallID           string     `json:"call_id" gorm:"column:call_id;uniqueIndex"`
	PhoneNumber      string     `json:"phone_number" gorm:"column:phone_number;index"`
	PracticeArea     string     `json:"practice_area" gorm:"column:practice_area"`
	Language         string     `json:"language" gorm:"column:language"`
	AgentID          string     `json:"agent_id" gorm:"column:agent_id"`
	Status           CallStatus `json:"status" gorm:"column:status;index"`
	Priority         int        `json:"priority" gorm:"column:priority"`
	CallbackRequired bool       `json:"callback_required" gorm:"column:callback_required"`
	CRMContactID     string     `json:"crm_contact_id" gorm:"column:crm_contact_id"`
	RecordingURL     string     `json:"recording_url" gorm:"column:recording_url"`
	Sentiment        string     `json:"sentiment" gorm:"column:sentiment"`
	LastError        string     `json:"last_error" gorm:"column:last_error"`
	CreatedAt        time.Time  `json:"created_at" gorm:"column:created_at"`
	ConnectedAt      *time.Time `json:"connected_at" gorm:"column:connected_at"`
	EndedAt          *time.Time `json:"ended_at" gorm:"column:ended_at"`
	DurationSeconds  int        `json:"duration_seconds" gorm:"column:duration_seconds"`
	UpdatedAt        time.Time  `json:"updated_at" gorm:"column:updated_at"`
	Metadata         JSONB      `json:"metadata" gorm:"column:metadata;type:jsonb"`
}

func (CallRecord) TableName() string {
	return "call_records"
}

// StatusEvent is an immutable append-only record of one status transition.
type StatusEvent struct {
	ID             string     `json:"id" gorm:"type:uuid;primaryKey"`
	CallID         string     `json:"call_id" gorm:"column:call_id;index"`
	PreviousStatus CallStatus `json:"previous_status" gorm:"column:previous_status"`
	NewStatus      CallStatus `json:"new_status" gorm:"column:new_status;index"`
	Timestamp      time.Time  `json:"timestamp" gorm:"column:timestamp;index"`
	Metadata       JSONB      `json:"metadata" gorm:"column:metadata;type:jsonb"`
}

func (StatusEvent) TableName() string {
	return "call_status_events"
}
