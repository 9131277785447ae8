package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/caselink/voice-call-service/internal/adapters/crm"
	"github.com/caselink/voice-call-service/internal/adapters/telephony"
	"github.com/caselink/voice-call-service/internal/config"
	"github.com/caselink/voice-call-service/internal/core/task"
	"github.com/caselink/voice-call-service/internal/errclass"
	"github.com/caselink/voice-call-service/internal/repository"
	"github.com/caselink/voice-call-service/internal/security"
	"github.com/caselink/voice-call-service/internal/services/recording"
	"github.com/caselink/voice-call-service/internal/services/router"
	"github.com/caselink/voice-call-service/internal/services/status"
	"github.com/caselink/voice-call-service/pkg/logger"
	pkgredis "github.com/caselink/voice-call-service/pkg/redis"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HandlerManager wires the service graph and owns the HTTP handlers.
type HandlerManager struct {
	cfg      *config.Config
	repos    repository.RepositoryManager
	gate     *security.Gate
	engine   *status.Engine
	router   *router.Router
	pipeline *recording.Pipeline
	taskBus  task.Bus
	provider telephony.Provider
	crm      crm.Client

	webhookHandler *WebhookHandler
	callHandler    *CallHandler
	healthHandler  *HealthHandler
}

// NewHandlerManager builds the full service graph from configuration. A
// Redis service is optional; without one the state store and task bus run
// in process.
func NewHandlerManager(cfg *config.Config, repos repository.RepositoryManager, redisSvc pkgredis.RedisServiceInterface) (*HandlerManager, error) {
	if repos == nil {
		return nil, fmt.Errorf("repository manager is required")
	}

	provider := telephony.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.OutboundCallsPerSecond)

	var crmClient crm.Client
	if cfg.CRMBaseURL != "" {
		crmClient = crm.NewHTTPClient(cfg.CRMBaseURL, cfg.CRMAPIKey)
	} else {
		logger.Base().Warn("CRM not configured, contact side effects disabled")
	}

	gate := security.NewGate(security.GateConfig{
		WebhookSecret:  cfg.WebhookSecret,
		APIKey:         cfg.APIKey,
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedIPs:     cfg.APIIPAllowlist,
		AllowUnsigned:  cfg.AllowUnsignedWebhooks,
		CallsPerMinute: cfg.CallsPerMinute,
		CallsPerHour:   cfg.CallsPerHour,
		CallsPerDay:    cfg.CallsPerDay,
	}, repos.SecurityEvents(), crmClient)
	gate.EscalationContactID = cfg.EscalationContactID

	var store status.StateStore
	var taskBus task.Bus
	if redisSvc != nil {
		store = status.NewRedisStore(redisSvc, 0)
		taskBus = task.NewRedisBus(redisSvc)
	} else {
		store = status.NewMemoryStore()
		taskBus = task.NewInProcessBus()
	}

	var escalator errclass.Escalator
	if crmClient != nil {
		escalator = &errclass.BillingEscalator{CRM: crmClient, ContactID: cfg.EscalationContactID}
	}
	classifier := errclass.NewClassifier(escalator)

	engine := status.NewEngine(
		repos.CallRecords(),
		repos.StatusEvents(),
		store,
		crmClient,
		taskBus,
		nil, // retrier wired below once the router exists
		status.Campaigns{
			PostCall:  cfg.PostCallCampaignID,
			NoAnswer:  cfg.NoAnswerCampaignID,
			Voicemail: cfg.VoicemailCampaignID,
		},
		status.DefaultDelays(),
	)

	callRouter := router.NewRouter(router.Config{
		AgentsByPracticeArea: cfg.AgentsByPracticeArea,
		GeneralAgentID:       cfg.GeneralAgentID,
		OutboundNumber:       cfg.OutboundNumber,
	}, crmClient, provider, repos.CallRecords(), engine, classifier)
	engine.SetRetrier(callRouter)

	pipeline := recording.NewPipeline(provider, repos.CallRecords(), crmClient)
	taskBus.Subscribe(task.TypeAnalyzeRecording, func(ctx context.Context, t *task.Task) error {
		return pipeline.ProcessRecording(ctx, t.CallID)
	})

	m := &HandlerManager{
		cfg:      cfg,
		repos:    repos,
		gate:     gate,
		engine:   engine,
		router:   callRouter,
		pipeline: pipeline,
		taskBus:  taskBus,
		provider: provider,
		crm:      crmClient,
	}
	m.webhookHandler = NewWebhookHandler(gate, engine, taskBus)
	m.callHandler = NewCallHandler(callRouter, engine, provider, gate)
	m.healthHandler = NewHealthHandler(repos)
	return m, nil
}

// RegisterRoutes mounts every endpoint on r.
func (m *HandlerManager) RegisterRoutes(r *mux.Router) {
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware(m.cfg.AllowedOrigins))

	r.HandleFunc("/health", m.healthHandler.Health).Methods(http.MethodGet)

	// provider webhooks authenticate by signature, not API key
	webhook := r.PathPrefix("/webhook").Subrouter()
	webhook.Use(IPAllowlistMiddleware(m.cfg.IPAllowlist))
	webhook.HandleFunc("/call", m.webhookHandler.HandleProviderWebhook).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(SecurityGateMiddleware(m.gate))
	api.Use(APIKeyMiddleware(m.cfg.SecretKey))
	api.HandleFunc("/calls", m.callHandler.CreateCall).Methods(http.MethodPost)
	api.HandleFunc("/calls/route", m.callHandler.RouteCall).Methods(http.MethodPost)
	api.HandleFunc("/calls/active", m.callHandler.GetActiveCalls).Methods(http.MethodGet)
	api.HandleFunc("/calls/analytics", m.callHandler.GetAnalytics).Methods(http.MethodGet)
	api.HandleFunc("/calls/{callID}/end", m.callHandler.EndCall).Methods(http.MethodPost)
	api.HandleFunc("/calls/{callID}/status", m.callHandler.GetStatus).Methods(http.MethodGet)
	api.HandleFunc("/calls/{callID}/history", m.callHandler.GetHistory).Methods(http.MethodGet)
	api.HandleFunc("/calls/{callID}/events", m.callHandler.StreamStatus).Methods(http.MethodGet)
	api.HandleFunc("/security/stats", m.callHandler.GetSecurityStats).Methods(http.MethodGet)
}

// Engine exposes the status engine for lifecycle management in main.
func (m *HandlerManager) Engine() *status.Engine { return m.engine }

// Gate exposes the security gate for periodic maintenance in main.
func (m *HandlerManager) Gate() *security.Gate { return m.gate }

// Shutdown stops timers and closes shared resources.
func (m *HandlerManager) Shutdown() {
	m.engine.Stop()
	if err := m.repos.Close(); err != nil {
		logger.Base().Warn("failed to close repositories", zap.Error(err))
	}
}
