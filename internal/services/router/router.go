package router

import (
	"context"
	"fmt"

	"github.com/caselink/voice-call-service/internal/adapters/crm"
	"github.com/caselink/voice-call-service/internal/adapters/telephony"
	"github.com/caselink/voice-call-service/internal/domain"
	"github.com/caselink/voice-call-service/internal/errclass"
	"github.com/caselink/voice-call-service/internal/repository"
	"github.com/caselink/voice-call-service/pkg/logger"
	"go.uber.org/zap"
)

const (
	defaultLanguage = "en"
	// existingClientPriority outranks the default of 1 so known clients
	// jump the queue.
	existingClientPriority = 5
)

// StatusUpdater seeds and advances lifecycle state for routed calls. The
// status engine satisfies it.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, callID string, newStatus domain.CallStatus, metadata domain.JSONB) error
}

// Config carries the router's agent assignments.
type Config struct {
	// AgentsByPracticeArea maps a practice area to the agent handling it.
	AgentsByPracticeArea map[string]string
	// GeneralAgentID answers anything without a dedicated agent.
	GeneralAgentID string
	// OutboundNumber is the caller id used for outbound calls.
	OutboundNumber string
}

// Router decides where a call goes and places outbound calls. Routing never
// fails: every degradation falls back toward the general intake line.
type Router struct {
	cfg        Config
	crm        crm.Client
	provider   telephony.Provider
	records    repository.CallRecordRepository
	statuses   StatusUpdater
	classifier *errclass.Classifier
}

// NewRouter creates a router. crm may be nil; existing-client detection is
// then skipped.
func NewRouter(
	cfg Config,
	crmClient crm.Client,
	provider telephony.Provider,
	records repository.CallRecordRepository,
	statuses StatusUpdater,
	classifier *errclass.Classifier,
) *Router {
	return &Router{
		cfg:        cfg,
		crm:        crmClient,
		provider:   provider,
		records:    records,
		statuses:   statuses,
		classifier: classifier,
	}
}

// RouteCall produces a routing decision for req. It always succeeds: a
// missing or unmapped practice area routes to general intake, and a CRM
// outage degrades to routing the caller as a new contact.
func (r *Router) RouteCall(ctx context.Context, req *domain.RouteRequest) *domain.RoutingDecision {
	decision := &domain.RoutingDecision{
		PracticeArea: req.PracticeArea,
		Language:     req.Language,
		Priority:     1,
	}
	if decision.Language == "" {
		decision.Language = defaultLanguage
	}
	if decision.PracticeArea == "" {
		decision.PracticeArea = domain.PracticeAreaGeneral
	}
	if _, ok := r.cfg.AgentsByPracticeArea[decision.PracticeArea]; !ok {
		if decision.PracticeArea != domain.PracticeAreaGeneral {
			logger.Base().Info("no agent for practice area, routing to general",
				zap.String("practice_area", decision.PracticeArea))
		}
		decision.PracticeArea = domain.PracticeAreaGeneral
	}
	decision.AgentID = r.agentFor(decision.PracticeArea)

	if r.crm != nil {
		contact, err := r.crm.FindContactByPhone(ctx, req.PhoneNumber)
		switch {
		case err != nil:
			logger.Base().Warn("CRM lookup failed, routing as new contact",
				zap.String("phone_number", req.PhoneNumber), zap.Error(err))
		case contact != nil:
			decision.Priority = existingClientPriority
			decision.CallbackRequired = true
			decision.CRMContactID = contact.ID
		}
	}

	if req.SourceType == domain.SourceExistingClient && decision.Priority == 1 {
		// caller self-identified as a client even though CRM lookup missed
		decision.Priority = existingClientPriority
		decision.CallbackRequired = true
	}
	return decision
}

// CreateRoutedCall routes req, places the outbound call and seeds the
// lifecycle record in queued state.
func (r *Router) CreateRoutedCall(ctx context.Context, req *domain.RouteRequest) (*domain.CallRecord, error) {
	decision := r.RouteCall(ctx, req)

	metadata := domain.JSONB{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["practice_area"] = decision.PracticeArea
	metadata["source_type"] = string(req.SourceType)

	resp, err := r.provider.CreateOutboundCall(ctx, &telephony.OutboundCallRequest{
		AgentID:    decision.AgentID,
		FromNumber: r.cfg.OutboundNumber,
		ToNumber:   req.PhoneNumber,
		Metadata:   metadata,
	})
	if err != nil {
		if r.classifier != nil {
			r.classifier.Classify(ctx, err, "create_outbound_call")
		}
		return nil, fmt.Errorf("failed to place outbound call: %w", err)
	}

	record := &domain.CallRecord{
		CallID:           resp.CallID,
		PhoneNumber:      req.PhoneNumber,
		PracticeArea:     decision.PracticeArea,
		Language:         decision.Language,
		AgentID:          decision.AgentID,
		Status:           domain.CallStatusQueued,
		Priority:         decision.Priority,
		CallbackRequired: decision.CallbackRequired,
		CRMContactID:     decision.CRMContactID,
		Metadata:         metadata,
	}
	if err := r.records.Create(ctx, record); err != nil {
		logger.Base().Error("failed to persist routed call record",
			zap.String("call_id", resp.CallID), zap.Error(err))
	}

	if r.statuses != nil {
		if err := r.statuses.UpdateStatus(ctx, resp.CallID, domain.CallStatusQueued, metadata); err != nil {
			logger.Base().Error("failed to seed call status",
				zap.String("call_id", resp.CallID), zap.Error(err))
		}
	}

	logger.Base().Info("outbound call routed",
		zap.String("call_id", resp.CallID),
		zap.String("practice_area", decision.PracticeArea),
		zap.String("agent_id", decision.AgentID),
		zap.Int("priority", decision.Priority))
	return record, nil
}

// RetryBusyCall places a fresh attempt for a call that hit a busy signal.
// The new record carries the original call id in its metadata so reporting
// can stitch the attempts together.
func (r *Router) RetryBusyCall(ctx context.Context, original *domain.CallRecord) error {
	req := &domain.RouteRequest{
		PhoneNumber:  original.PhoneNumber,
		PracticeArea: original.PracticeArea,
		Language:     original.Language,
		Metadata: domain.JSONB{
			"retry_of": original.CallID,
		},
	}
	record, err := r.CreateRoutedCall(ctx, req)
	if err != nil {
		return fmt.Errorf("busy retry for %s: %w", original.CallID, err)
	}
	logger.Base().Info("busy call retried",
		zap.String("original_call_id", original.CallID),
		zap.String("retry_call_id", record.CallID))
	return nil
}

func (r *Router) agentFor(practiceArea string) string {
	if id, ok := r.cfg.AgentsByPracticeArea[practiceArea]; ok && id != "" {
		return id
	}
	return r.cfg.GeneralAgentID
}
