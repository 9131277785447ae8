package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/caselink/voice-call-service/internal/domain"
	"github.com/caselink/voice-call-service/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Provider is the telephony collaborator consumed by the router, the status
// engine and the recording pipeline. The concrete implementation is a thin
// HTTP wrapper; tests substitute stubs.
type Provider interface {
	CreateOutboundCall(ctx context.Context, req *OutboundCallRequest) (*OutboundCallResponse, error)
	EndCall(ctx context.Context, callID string) error
	GetCall(ctx context.Context, callID string) (*CallDetail, error)
	GetRecording(ctx context.Context, callID string) (*Recording, error)
	GetTranscript(ctx context.Context, callID string) (string, error)

	CreateAgent(ctx context.Context, agent *Agent) (*Agent, error)
	GetAgent(ctx context.Context, agentID string) (*Agent, error)
	UpdateAgent(ctx context.Context, agentID string, agent *Agent) (*Agent, error)
	DeleteAgent(ctx context.Context, agentID string) error
	ListAgents(ctx context.Context) ([]*Agent, error)
}

// OutboundCallRequest is the payload for placing an outbound call.
type OutboundCallRequest struct {
	AgentID    string       `json:"agent_id"`
	FromNumber string       `json:"from_number"`
	ToNumber   string       `json:"to_number"`
	Metadata   domain.JSONB `json:"metadata,omitempty"`
}

// OutboundCallResponse carries the provider-issued call id.
type OutboundCallResponse struct {
	CallID  string `json:"call_id"`
	AgentID string `json:"agent_id"`
}

// CallDetail is the provider's view of a call.
type CallDetail struct {
	CallID     string       `json:"call_id"`
	AgentID    string       `json:"agent_id"`
	FromNumber string       `json:"from_number"`
	ToNumber   string       `json:"to_number"`
	DurationMs int64        `json:"duration_ms"`
	Transcript string       `json:"transcript"`
	Metadata   domain.JSONB `json:"metadata"`
}

// Recording is a finalized call recording.
type Recording struct {
	RecordingURL string `json:"recording_url"`
}

// Agent is a conversational agent configuration on the provider side.
type Agent struct {
	AgentID      string `json:"agent_id,omitempty"`
	AgentName    string `json:"agent_name"`
	Language     string `json:"language,omitempty"`
	PracticeArea string `json:"practice_area,omitempty"`
}

// APIError is a non-2xx response from the provider. The error classifier
// inspects StatusCode and RetryAfter via errors.As.
type APIError struct {
	StatusCode int
	RetryAfter int // seconds, from the Retry-After header when present
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider API error: status=%d body=%s", e.StatusCode, e.Body)
}

// Client is the HTTP implementation of Provider.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client

	// limiter smooths outbound call creation so a burst of routing requests
	// cannot trip the provider's own rate limits.
	limiter *rate.Limiter
}

// NewClient creates a new telephony provider client. callsPerSecond bounds
// outbound call creation; zero or negative disables the limiter.
func NewClient(baseURL, apiKey string, callsPerSecond float64) *Client {
	var limiter *rate.Limiter
	if callsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(callsPerSecond), 1)
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: limiter,
	}
}

// CreateOutboundCall places an outbound call through the provider.
func (c *Client) CreateOutboundCall(ctx context.Context, req *OutboundCallRequest) (*OutboundCallResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("outbound call limiter: %w", err)
		}
	}

	var resp OutboundCallResponse
	if err := c.do(ctx, http.MethodPost, "/v2/call", req, &resp); err != nil {
		return nil, err
	}
	if resp.CallID == "" {
		return nil, fmt.Errorf("provider returned empty call_id")
	}
	return &resp, nil
}

// EndCall asks the provider to terminate an in-flight call.
func (c *Client) EndCall(ctx context.Context, callID string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v2/call/%s/end", callID), nil, nil)
}

// GetCall fetches the provider's view of a call.
func (c *Client) GetCall(ctx context.Context, callID string) (*CallDetail, error) {
	var detail CallDetail
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v2/call/%s", callID), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// GetRecording fetches the recording URL for an ended call.
func (c *Client) GetRecording(ctx context.Context, callID string) (*Recording, error) {
	var rec Recording
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v2/call/%s/recording", callID), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetTranscript fetches the transcript for an ended call. The provider only
// materializes transcripts on the call detail, so this reads GetCall.
func (c *Client) GetTranscript(ctx context.Context, callID string) (string, error) {
	detail, err := c.GetCall(ctx, callID)
	if err != nil {
		return "", err
	}
	if detail.Transcript == "" {
		return "", fmt.Errorf("transcript not available for call %s", callID)
	}
	return detail.Transcript, nil
}

// CreateAgent creates a conversational agent.
func (c *Client) CreateAgent(ctx context.Context, agent *Agent) (*Agent, error) {
	var created Agent
	if err := c.do(ctx, http.MethodPost, "/v2/agent", agent, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetAgent fetches an agent by id.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	var agent Agent
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v2/agent/%s", agentID), nil, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// UpdateAgent patches an agent configuration.
func (c *Client) UpdateAgent(ctx context.Context, agentID string, agent *Agent) (*Agent, error) {
	var updated Agent
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/v2/agent/%s", agentID), agent, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteAgent removes an agent.
func (c *Client) DeleteAgent(ctx context.Context, agentID string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/v2/agent/%s", agentID), nil, nil)
}

// ListAgents returns all agents.
func (c *Client) ListAgents(ctx context.Context) ([]*Agent, error) {
	var agents []*Agent
	if err := c.do(ctx, http.MethodGet, "/v2/agent", nil, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// do executes one provider request with auth, request id and logging.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	requestID := uuid.New().String()
	url := c.BaseURL + path

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	logger.Base().Debug("provider request",
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("path", path))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		logger.Base().Error("provider request failed",
			zap.String("request_id", requestID),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err))
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	logger.Base().Debug("provider response",
		zap.String("request_id", requestID),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(bodyBytes),
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil {
				apiErr.RetryAfter = seconds
			}
		}
		return apiErr
	}

	if out != nil && len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
