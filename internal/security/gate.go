package security

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/caselink/voice-call-service/internal/adapters/crm"
	"github.com/caselink/voice-call-service/internal/domain"
	"github.com/caselink/voice-call-service/internal/repository"
	"github.com/caselink/voice-call-service/pkg/logger"
	"go.uber.org/zap"
)

var (
	// ErrMissingSignature is returned when a webhook arrives unsigned and
	// unsigned delivery is not explicitly enabled.
	ErrMissingSignature = errors.New("webhook signature missing")
	// ErrInvalidSignature is returned when the signature does not match.
	ErrInvalidSignature = errors.New("webhook signature invalid")
	// ErrRateLimited is returned when a caller exhausts a rate window.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrInvalidAPIKey is returned when a direct API caller presents a
	// missing or mismatched key.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrRequestBlocked is returned when request attributes grade high risk.
	ErrRequestBlocked = errors.New("request blocked")
)

// eventService stamps persisted security events with their origin.
const eventService = "voice-call"

// PhoneValidation is the outcome of validating a phone number.
type PhoneValidation struct {
	Valid      bool
	Normalized string
	RiskLevel  domain.RiskLevel
	Reason     string
}

// GateConfig carries the gate's tunables.
type GateConfig struct {
	WebhookSecret string
	// APIKey authenticates direct (non-JWT) API callers. Empty disables
	// the check.
	APIKey string
	// AllowedOrigins grades requests from other origins medium risk.
	// Empty disables the check.
	AllowedOrigins []string
	// AllowedIPs grades requests from other addresses high risk and blocks
	// them. Empty disables the check.
	AllowedIPs []string
	// AllowUnsigned disables signature verification. Development only; the
	// gate logs loudly every time it is exercised.
	AllowUnsigned  bool
	CallsPerMinute int
	CallsPerHour   int
	CallsPerDay    int
}

// Gate performs webhook verification, rate limiting, phone validation and
// metadata sanitization at the service boundary.
type Gate struct {
	cfg     GateConfig
	limiter *FixedWindowLimiter
	events  repository.SecurityEventRepository
	crm     crm.Client

	// EscalationContactID receives the CRM task filed for high-risk phone
	// numbers. Empty disables escalation.
	EscalationContactID string
}

// NewGate creates a gate. events and crmClient may be nil; persistence and
// escalation then degrade to logging.
func NewGate(cfg GateConfig, events repository.SecurityEventRepository, crmClient crm.Client) *Gate {
	if cfg.CallsPerMinute <= 0 {
		cfg.CallsPerMinute = 10
	}
	if cfg.CallsPerHour <= 0 {
		cfg.CallsPerHour = 100
	}
	if cfg.CallsPerDay <= 0 {
		cfg.CallsPerDay = 500
	}
	return &Gate{
		cfg: cfg,
		limiter: NewFixedWindowLimiter(map[time.Duration]int{
			time.Minute:    cfg.CallsPerMinute,
			time.Hour:      cfg.CallsPerHour,
			24 * time.Hour: cfg.CallsPerDay,
		}),
		events: events,
		crm:    crmClient,
	}
}

// VerifyWebhookSignature checks the HMAC-SHA256 signature over the raw
// request body. Verification fails closed: a missing secret or signature
// rejects the request unless AllowUnsigned was set explicitly.
func (g *Gate) VerifyWebhookSignature(body []byte, signature string) error {
	if g.cfg.AllowUnsigned {
		logger.Base().Warn("webhook signature verification DISABLED, accepting unsigned request")
		return nil
	}
	if g.cfg.WebhookSecret == "" {
		logger.Base().Error("webhook secret not configured, rejecting request")
		return ErrMissingSignature
	}
	if signature == "" {
		return ErrMissingSignature
	}

	signature = strings.TrimPrefix(signature, "sha256=")
	mac := hmac.New(sha256.New, []byte(g.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// APIRequest carries the caller attributes the gate inspects.
type APIRequest struct {
	APIKey    string
	Origin    string
	IP        string
	UserAgent string
}

var botUserAgentRe = regexp.MustCompile(`(?i)(bot|crawler|spider|scraper|hack|curl|wget)`)

// ValidateAPIRequest grades a direct API call. A mismatched key or a
// non-allowlisted IP is high risk: the request is rejected, a security event
// is recorded and an admin review task is raised. Unauthorized origins and
// bot-looking user agents are recorded at medium risk but allowed through.
// Unset config fields disable their checks.
func (g *Gate) ValidateAPIRequest(ctx context.Context, req APIRequest) error {
	if g.cfg.APIKey != "" && !hmac.Equal([]byte(req.APIKey), []byte(g.cfg.APIKey)) {
		g.recordEvent(ctx, "invalid_api_key", domain.RiskHigh, domain.JSONB{
			"ip":     req.IP,
			"origin": req.Origin,
		})
		g.escalateHighRisk(ctx, req.IP, "invalid API key")
		return ErrInvalidAPIKey
	}

	risk := domain.RiskLow
	var reasons []string

	if req.Origin != "" && len(g.cfg.AllowedOrigins) > 0 && !containsString(g.cfg.AllowedOrigins, req.Origin) {
		reasons = append(reasons, "unauthorized origin")
		risk = domain.RiskMedium
	}
	if req.IP != "" && len(g.cfg.AllowedIPs) > 0 && !containsString(g.cfg.AllowedIPs, req.IP) {
		reasons = append(reasons, "IP not allowlisted")
		risk = domain.RiskHigh
	}
	if req.UserAgent != "" && botUserAgentRe.MatchString(req.UserAgent) {
		reasons = append(reasons, "suspicious user agent")
		if risk == domain.RiskLow {
			risk = domain.RiskMedium
		}
	}

	if risk == domain.RiskLow {
		return nil
	}
	g.recordEvent(ctx, "api_request_validation", risk, domain.JSONB{
		"ip":         req.IP,
		"origin":     req.Origin,
		"user_agent": req.UserAgent,
		"reasons":    strings.Join(reasons, ", "),
	})
	if risk == domain.RiskHigh {
		g.escalateHighRisk(ctx, req.IP, strings.Join(reasons, ", "))
		return fmt.Errorf("%w: %s", ErrRequestBlocked, strings.Join(reasons, ", "))
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// SweepRateBuckets drops expired rate-limit buckets and reports how many
// were removed. Intended for a periodic maintenance ticker.
func (g *Gate) SweepRateBuckets() int {
	return g.limiter.Sweep()
}

// CheckRateLimit records one call attempt for identifier and returns
// ErrRateLimited when any window (minute, hour, day) is exhausted.
func (g *Gate) CheckRateLimit(ctx context.Context, identifier string) error {
	window, ok := g.limiter.Allow(identifier)
	if ok {
		return nil
	}

	g.recordEvent(ctx, "rate_limit_exceeded", domain.RiskMedium, domain.JSONB{
		"identifier": identifier,
		"window":     window,
	})
	return fmt.Errorf("%w: window %s", ErrRateLimited, window)
}

var (
	formattingRe = regexp.MustCompile(`[\s\-\(\)\+\.]`)
	digitsOnlyRe = regexp.MustCompile(`^\d+$`)
	premiumRe    = regexp.MustCompile(`^1?(900|976)`)
	sequentialRe = regexp.MustCompile(`^(0123456789|1234567890|9876543210)`)
)

// ValidatePhoneNumber strips formatting and validates number. Bad length or
// non-numeric characters reject at medium risk; suspicious patterns (repeated
// digits, sequences, premium-rate prefixes) reject at high risk and raise an
// escalation task.
func (g *Gate) ValidatePhoneNumber(ctx context.Context, number string) PhoneValidation {
	cleaned := formattingRe.ReplaceAllString(number, "")

	if len(cleaned) < 10 || len(cleaned) > 15 {
		g.recordEvent(ctx, "invalid_phone", domain.RiskMedium, domain.JSONB{
			"phone":       number,
			"digit_count": len(cleaned),
		})
		return PhoneValidation{
			Valid:     false,
			RiskLevel: domain.RiskMedium,
			Reason:    "phone number must contain 10 to 15 digits",
		}
	}

	if !digitsOnlyRe.MatchString(cleaned) {
		g.recordEvent(ctx, "invalid_phone", domain.RiskMedium, domain.JSONB{
			"phone": number,
		})
		return PhoneValidation{
			Valid:     false,
			RiskLevel: domain.RiskMedium,
			Reason:    "phone number contains non-numeric characters",
		}
	}

	if reason := suspiciousPattern(cleaned); reason != "" {
		g.recordEvent(ctx, "suspicious_phone", domain.RiskHigh, domain.JSONB{
			"phone":  cleaned,
			"reason": reason,
		})
		g.escalateHighRisk(ctx, cleaned, reason)
		return PhoneValidation{
			Valid:      false,
			Normalized: cleaned,
			RiskLevel:  domain.RiskHigh,
			Reason:     reason,
		}
	}

	return PhoneValidation{
		Valid:      true,
		Normalized: cleaned,
		RiskLevel:  domain.RiskLow,
	}
}

func suspiciousPattern(digits string) string {
	allSame := true
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return "all digits identical"
	}
	if sequentialRe.MatchString(digits) {
		return "sequential digit pattern"
	}
	if premiumRe.MatchString(digits) {
		return "premium-rate prefix"
	}
	return ""
}

// ValidateCallConfig checks the envelope limits on a call configuration
// before it reaches the router.
func (g *Gate) ValidateCallConfig(metadata domain.JSONB) error {
	if metadata == nil {
		return nil
	}
	size := 0
	for k, v := range metadata {
		size += len(k) + len(fmt.Sprintf("%v", v))
	}
	if size > 10*1024 {
		return fmt.Errorf("call metadata exceeds 10KB limit (%d bytes)", size)
	}
	return nil
}

func (g *Gate) recordEvent(ctx context.Context, eventType string, risk domain.RiskLevel, details domain.JSONB) {
	if g.events == nil {
		logger.Base().Info("security event",
			zap.String("event_type", eventType),
			zap.String("risk_level", string(risk)))
		return
	}
	event := &domain.SecurityEvent{
		Type:      eventType,
		RiskLevel: risk,
		Details:   details,
		Service:   eventService,
		Timestamp: time.Now(),
	}
	if err := g.events.Create(ctx, event); err != nil {
		logger.Base().Error("failed to persist security event",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

func (g *Gate) escalateHighRisk(ctx context.Context, identifier, reason string) {
	if g.crm == nil || g.EscalationContactID == "" {
		return
	}
	task := &crm.Task{
		ContactID:   g.EscalationContactID,
		Title:       "Review high-risk call attempt",
		Description: fmt.Sprintf("Phone %s flagged: %s", identifier, reason),
		DueDate:     time.Now().Add(time.Hour),
	}
	if err := g.crm.CreateTask(ctx, task); err != nil {
		logger.Base().Error("failed to create high-risk escalation task", zap.Error(err))
	}
}

// Stats summarizes security events by risk level over the window ending now.
func (g *Gate) Stats(ctx context.Context, window time.Duration) (map[string]int64, error) {
	if g.events == nil {
		return map[string]int64{}, nil
	}
	end := time.Now()
	byRisk, err := g.events.StatsByRisk(ctx, end.Add(-window), end)
	if err != nil {
		return nil, fmt.Errorf("failed to load security stats: %w", err)
	}
	out := make(map[string]int64, len(byRisk))
	for risk, count := range byRisk {
		out[string(risk)] = count
	}
	return out, nil
}
