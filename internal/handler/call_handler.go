package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/caselink/voice-call-service/internal/adapters/telephony"
	"github.com/caselink/voice-call-service/internal/domain"
	"github.com/caselink/voice-call-service/internal/security"
	"github.com/caselink/voice-call-service/internal/services/router"
	"github.com/caselink/voice-call-service/internal/services/status"
	"github.com/caselink/voice-call-service/pkg/logger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// CallHandler serves the call management API.
type CallHandler struct {
	router   *router.Router
	engine   *status.Engine
	provider telephony.Provider
	gate     *security.Gate
}

// NewCallHandler creates a call handler.
func NewCallHandler(r *router.Router, engine *status.Engine, provider telephony.Provider, gate *security.Gate) *CallHandler {
	return &CallHandler{router: r, engine: engine, provider: provider, gate: gate}
}

type createCallRequest struct {
	PhoneNumber  string            `json:"phone_number"`
	PracticeArea string            `json:"practice_area,omitempty"`
	Language     string            `json:"language,omitempty"`
	SourceType   domain.SourceType `json:"source_type,omitempty"`
	Metadata     domain.JSONB      `json:"metadata,omitempty"`
}

// CreateCall places an outbound call: validate, rate limit, route, dial.
func (h *CallHandler) CreateCall(w http.ResponseWriter, r *http.Request) {
	var req createCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	validation := h.gate.ValidatePhoneNumber(r.Context(), req.PhoneNumber)
	if !validation.Valid {
		if validation.RiskLevel == domain.RiskHigh {
			writeError(w, http.StatusUnprocessableEntity, "phone number flagged for review")
			return
		}
		writeError(w, http.StatusBadRequest, validation.Reason)
		return
	}

	if err := h.gate.CheckRateLimit(r.Context(), validation.Normalized); err != nil {
		if errors.Is(err, security.ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "rate limit check failed")
		return
	}

	req.Metadata = security.SanitizeMetadata(req.Metadata)
	if err := h.gate.ValidateCallConfig(req.Metadata); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := h.router.CreateRoutedCall(r.Context(), &domain.RouteRequest{
		PhoneNumber:  validation.Normalized,
		PracticeArea: req.PracticeArea,
		Language:     req.Language,
		SourceType:   req.SourceType,
		Metadata:     req.Metadata,
	})
	if err != nil {
		logger.Base().Error("outbound call creation failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to place call")
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

// RouteCall returns a routing decision without placing a call.
func (h *CallHandler) RouteCall(w http.ResponseWriter, r *http.Request) {
	var req createCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	decision := h.router.RouteCall(r.Context(), &domain.RouteRequest{
		PhoneNumber:  req.PhoneNumber,
		PracticeArea: req.PracticeArea,
		Language:     req.Language,
		SourceType:   req.SourceType,
		Metadata:     req.Metadata,
	})
	writeJSON(w, http.StatusOK, decision)
}

// EndCall asks the provider to terminate a call. The lifecycle advances
// when the provider's call_ended webhook arrives.
func (h *CallHandler) EndCall(w http.ResponseWriter, r *http.Request) {
	callID := mux.Vars(r)["callID"]
	if err := h.provider.EndCall(r.Context(), callID); err != nil {
		logger.Base().Error("failed to end call",
			zap.String("call_id", callID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to end call")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"call_id": callID, "status": "ending"})
}

// GetStatus returns the live status for one call.
func (h *CallHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	callID := mux.Vars(r)["callID"]
	st, err := h.engine.GetCurrentStatus(r.Context(), callID)
	if err != nil {
		if errors.Is(err, status.ErrCallNotFound) {
			writeError(w, http.StatusNotFound, "call not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"call_id": callID, "status": string(st)})
}

// GetHistory returns the transition history for one call.
func (h *CallHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	callID := mux.Vars(r)["callID"]
	history, err := h.engine.GetHistory(r.Context(), callID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"call_id": callID, "history": history})
}

// GetActiveCalls lists every in-flight call, oldest first.
func (h *CallHandler) GetActiveCalls(w http.ResponseWriter, r *http.Request) {
	calls, err := h.engine.GetActiveCalls(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load active calls")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(calls), "calls": calls})
}

// GetAnalytics aggregates transitions per status over the requested window
// (query param hours, default 24).
func (h *CallHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			hours = parsed
		}
	}
	end := time.Now()
	start := end.Add(-time.Duration(hours) * time.Hour)

	counts, err := h.engine.CountByStatus(r.Context(), start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load analytics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"window_hours": hours,
		"by_status":    counts,
	})
}

// GetSecurityStats summarizes security events by risk level over the last
// 24 hours.
func (h *CallHandler) GetSecurityStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.gate.Stats(r.Context(), 24*time.Hour)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load security stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"by_risk": stats})
}

// StreamStatus serves status updates for one call over server-sent events.
// The current status is replayed first; the stream ends when the client
// disconnects or the call's listeners are evicted after a terminal status.
func (h *CallHandler) StreamStatus(w http.ResponseWriter, r *http.Request) {
	callID := mux.Vars(r)["callID"]

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	updates, unsubscribe := h.engine.Subscribe(r.Context(), callID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case update, open := <-updates:
			if !open {
				return
			}
			payload, err := json.Marshal(update)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
