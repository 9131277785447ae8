package domain

// SourceType identifies where a routing request originated.
type SourceType string

const (
	SourceWebsite        SourceType = "website"
	SourceExistingClient SourceType = "existing_client"
	SourceReferral       SourceType = "referral"
	SourceCampaign       SourceType = "campaign"
)

// PracticeAreaGeneral is the fallback practice area used when a requested
// area has no mapped agent. Call intake must never fail on classification.
const PracticeAreaGeneral = "general"

// RouteRequest carries the inputs for a routing decision.
type RouteRequest struct {
	PhoneNumber  string     `json:"phone_number"`
	PracticeArea string     `json:"practice_area,omitempty"`
	Language     string     `json:"language,omitempty"`
	SourceType   SourceType `json:"source_type,omitempty"`
	Metadata     JSONB      `json:"metadata,omitempty"`
}

// RoutingDecision is the value object returned by the router. It is derived
// per request and never persisted.
type RoutingDecision struct {
	PracticeArea     string `json:"practice_area"`
	Language         string `json:"language"`
	Priority         int    `json:"priority"`
	CallbackRequired bool   `json:"callback_required"`
	AgentID          string `json:"agent_id,omitempty"`
	CRMContactID     string `json:"crm_contact_id,omitempty"`
}
