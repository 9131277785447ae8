package errclass

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/caselink/voice-call-service/internal/adapters/telephony"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEscalator struct {
	messages []string
	err      error
}

func (f *fakeEscalator) EscalateBilling(_ context.Context, message string) error {
	f.messages = append(f.messages, message)
	return f.err
}

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "dial tcp: connection refused" }
func (fakeNetError) Timeout() bool   { return false }
func (fakeNetError) Temporary() bool { return true }

func TestClassifyAuthentication(t *testing.T) {
	c := NewClassifier(nil)
	for _, code := range []int{401, 403} {
		result := c.Classify(context.Background(), &telephony.APIError{StatusCode: code}, "test")
		assert.Equal(t, KindAuthentication, result.Kind, "status %d", code)
		assert.False(t, result.Recoverable)
	}
}

func TestClassifyRateLimit(t *testing.T) {
	c := NewClassifier(nil)
	err := &telephony.APIError{StatusCode: 429, RetryAfter: 30}
	result := c.Classify(context.Background(), err, "test")

	assert.Equal(t, KindRateLimit, result.Kind)
	assert.True(t, result.Recoverable)
	assert.Equal(t, 30, result.RetryAfterSeconds)
}

func TestClassifyBillingEscalates(t *testing.T) {
	esc := &fakeEscalator{}
	c := NewClassifier(esc)

	result := c.Classify(context.Background(), &telephony.APIError{StatusCode: 402}, "test")

	assert.Equal(t, KindBilling, result.Kind)
	require.Len(t, esc.messages, 1)
}

func TestClassifyBillingEscalationFailureDoesNotPanic(t *testing.T) {
	esc := &fakeEscalator{err: errors.New("crm down")}
	c := NewClassifier(esc)

	result := c.Classify(context.Background(), &telephony.APIError{StatusCode: 402}, "test")
	assert.Equal(t, KindBilling, result.Kind)
}

func TestClassifyServerErrorTransient(t *testing.T) {
	c := NewClassifier(nil)
	for _, code := range []int{500, 502, 503} {
		result := c.Classify(context.Background(), &telephony.APIError{StatusCode: code}, "test")
		assert.Equal(t, KindTransient, result.Kind, "status %d", code)
		assert.True(t, result.Recoverable)
	}
}

func TestClassifyNetworkErrorTransient(t *testing.T) {
	c := NewClassifier(nil)
	wrapped := fmt.Errorf("provider request failed: %w", fakeNetError{})
	result := c.Classify(context.Background(), wrapped, "test")

	assert.Equal(t, KindTransient, result.Kind)
	assert.True(t, result.Recoverable)
}

func TestClassifyUnknown(t *testing.T) {
	c := NewClassifier(nil)

	result := c.Classify(context.Background(), &telephony.APIError{StatusCode: 418}, "test")
	assert.Equal(t, KindUnknown, result.Kind)

	result = c.Classify(context.Background(), errors.New("something odd"), "test")
	assert.Equal(t, KindUnknown, result.Kind)
}

func TestClassifyWrappedAPIError(t *testing.T) {
	c := NewClassifier(nil)
	wrapped := fmt.Errorf("failed to place outbound call: %w", &telephony.APIError{StatusCode: 429})
	result := c.Classify(context.Background(), wrapped, "test")
	assert.Equal(t, KindRateLimit, result.Kind)
}
