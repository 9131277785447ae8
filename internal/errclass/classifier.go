package errclass

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/caselink/voice-call-service/internal/adapters/crm"
	"github.com/caselink/voice-call-service/internal/adapters/telephony"
	"github.com/caselink/voice-call-service/pkg/logger"
	"go.uber.org/zap"
)

// Kind buckets provider errors by the operational response they require.
type Kind string

const (
	KindAuthentication Kind = "AUTHENTICATION"
	KindRateLimit      Kind = "RATE_LIMIT"
	KindBilling        Kind = "BILLING"
	KindTransient      Kind = "TRANSIENT"
	KindUnknown        Kind = "UNKNOWN"
)

// Classification is the outcome of classifying one provider error.
type Classification struct {
	Kind        Kind
	Recoverable bool
	// RetryAfterSeconds is set for rate-limit errors when the provider sent
	// a Retry-After header; zero otherwise.
	RetryAfterSeconds int
	Message           string
}

// Escalator receives billing classifications that need human attention. The
// CRM task creator satisfies it in production.
type Escalator interface {
	EscalateBilling(ctx context.Context, message string) error
}

// Classifier maps provider errors to operational categories and escalates
// the ones that demand immediate action.
type Classifier struct {
	escalator Escalator
}

// NewClassifier creates a classifier. escalator may be nil, in which case
// billing errors are logged but not escalated.
func NewClassifier(escalator Escalator) *Classifier {
	return &Classifier{escalator: escalator}
}

// Classify inspects err and returns its operational category. callContext
// names the operation for log correlation.
func (c *Classifier) Classify(ctx context.Context, err error, callContext string) Classification {
	result := c.classify(err)

	logger.Base().Warn("provider error classified",
		zap.String("context", callContext),
		zap.String("kind", string(result.Kind)),
		zap.Bool("recoverable", result.Recoverable),
		zap.Int("retry_after_seconds", result.RetryAfterSeconds),
		zap.Error(err))

	if result.Kind == KindBilling && c.escalator != nil {
		if escErr := c.escalator.EscalateBilling(ctx, result.Message); escErr != nil {
			logger.Base().Error("billing escalation failed",
				zap.String("context", callContext),
				zap.Error(escErr))
		}
	}
	return result
}

func (c *Classifier) classify(err error) Classification {
	var apiErr *telephony.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return Classification{
				Kind:    KindAuthentication,
				Message: "provider rejected credentials, check API key configuration",
			}
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return Classification{
				Kind:              KindRateLimit,
				Recoverable:       true,
				RetryAfterSeconds: apiErr.RetryAfter,
				Message:           "provider rate limit reached",
			}
		case apiErr.StatusCode == http.StatusPaymentRequired:
			return Classification{
				Kind:    KindBilling,
				Message: "provider account has a billing problem, manual intervention required",
			}
		case apiErr.StatusCode >= 500:
			return Classification{
				Kind:        KindTransient,
				Recoverable: true,
				Message:     "provider server error",
			}
		}
		return Classification{Kind: KindUnknown, Message: err.Error()}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Classification{
			Kind:        KindTransient,
			Recoverable: true,
			Message:     "network error reaching provider",
		}
	}

	return Classification{Kind: KindUnknown, Message: err.Error()}
}

// BillingEscalator creates an urgent CRM task for billing failures, due in
// 15 minutes so it lands at the top of the follow-up queue.
type BillingEscalator struct {
	CRM       crm.Client
	ContactID string
}

// EscalateBilling files the urgent task.
func (b *BillingEscalator) EscalateBilling(ctx context.Context, message string) error {
	return b.CRM.CreateTask(ctx, &crm.Task{
		ContactID:   b.ContactID,
		Title:       "URGENT: voice provider billing issue",
		Description: message,
		DueDate:     time.Now().Add(15 * time.Minute),
		Urgent:      true,
	})
}
