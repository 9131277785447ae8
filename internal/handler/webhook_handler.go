package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/caselink/voice-call-service/internal/core/task"
	"github.com/caselink/voice-call-service/internal/domain"
	"github.com/caselink/voice-call-service/internal/security"
	"github.com/caselink/voice-call-service/internal/services/status"
	"github.com/caselink/voice-call-service/pkg/logger"
	"go.uber.org/zap"
)

// maxWebhookBody bounds webhook payloads; transcripts ride on the call
// detail API, not the webhook, so 1MB is generous.
const maxWebhookBody = 1 << 20

// WebhookHandler receives telephony provider events: verify, validate,
// sanitize, then drive the status engine.
type WebhookHandler struct {
	gate   *security.Gate
	engine *status.Engine
	tasks  task.Bus
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(gate *security.Gate, engine *status.Engine, tasks task.Bus) *WebhookHandler {
	return &WebhookHandler{gate: gate, engine: engine, tasks: tasks}
}

// HandleProviderWebhook processes one provider event. Once the signature
// checks out and the caller is within its rate allowance the response is
// always 200: the provider retries non-2xx responses and a malformed event
// will not become well-formed on retry.
func (h *WebhookHandler) HandleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if err := h.gate.VerifyWebhookSignature(body, r.Header.Get("X-Signature")); err != nil {
		logger.Base().Warn("webhook rejected",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err))
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	event, err := domain.ParseWebhookEvent(body)
	if err != nil {
		logger.Base().Warn("malformed webhook event", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if err := h.gate.CheckRateLimit(r.Context(), webhookCaller(event, r)); err != nil {
		logger.Base().Warn("webhook rate limited",
			zap.String("call_id", event.Call.CallID), zap.Error(err))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	if event.Type == domain.EventRecordingReady {
		if h.tasks != nil {
			t := &task.Task{Type: task.TypeAnalyzeRecording, CallID: event.Call.CallID}
			if err := h.tasks.Publish(r.Context(), t); err != nil {
				logger.Base().Error("failed to enqueue recording analysis",
					zap.String("call_id", event.Call.CallID), zap.Error(err))
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	newStatus, ok := event.Status()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	metadata := security.SanitizeMetadata(eventMetadata(event))
	if err := h.engine.UpdateStatus(r.Context(), event.Call.CallID, newStatus, metadata); err != nil {
		logger.Base().Error("status update from webhook failed",
			zap.String("call_id", event.Call.CallID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// webhookCaller picks the rate-limit identifier for an event: the caller's
// number when present, the peer address otherwise.
func webhookCaller(event *domain.WebhookEvent, r *http.Request) string {
	if event.Call.FromNumber != "" {
		return event.Call.FromNumber
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// eventMetadata flattens the interesting payload fields into the metadata
// stored with the transition.
func eventMetadata(event *domain.WebhookEvent) domain.JSONB {
	meta := domain.JSONB{}
	for k, v := range event.Call.Metadata {
		meta[k] = v
	}
	if event.Call.FromNumber != "" {
		meta["from_number"] = event.Call.FromNumber
	}
	if event.Call.AgentID != "" {
		meta["agent_id"] = event.Call.AgentID
	}
	if event.Call.DurationMs > 0 {
		meta["duration_ms"] = float64(event.Call.DurationMs)
	}
	if event.Call.DisconnectionReason != "" {
		meta["reason"] = event.Call.DisconnectionReason
	}
	return meta
}
