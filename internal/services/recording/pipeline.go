package recording

import (
	"context"
	"fmt"
	"strconv"

	"github.com/caselink/voice-call-service/internal/adapters/crm"
	"github.com/caselink/voice-call-service/internal/adapters/telephony"
	"github.com/caselink/voice-call-service/internal/domain"
	"github.com/caselink/voice-call-service/internal/repository"
	"github.com/caselink/voice-call-service/pkg/logger"
	"go.uber.org/zap"
)

// Sentiment tags applied to CRM contacts. Neutral calls are not tagged.
const (
	tagPositive = "call-positive"
	tagNegative = "call-negative"
)

// Pipeline processes the recording of an ended call: fetch the recording
// and transcript, score sentiment, persist the results and tag the CRM
// contact.
type Pipeline struct {
	provider telephony.Provider
	records  repository.CallRecordRepository
	crm      crm.Client
}

// NewPipeline creates a pipeline. crm may be nil; tagging is then skipped.
func NewPipeline(provider telephony.Provider, records repository.CallRecordRepository, crmClient crm.Client) *Pipeline {
	return &Pipeline{
		provider: provider,
		records:  records,
		crm:      crmClient,
	}
}

// ProcessRecording runs the pipeline for callID. A fetch failure aborts the
// run and surfaces the error; the caller decides whether to reschedule.
func (p *Pipeline) ProcessRecording(ctx context.Context, callID string) error {
	record, err := p.records.GetByCallID(ctx, callID)
	if err != nil {
		return fmt.Errorf("failed to load call record: %w", err)
	}
	if record == nil {
		return fmt.Errorf("no call record for %s", callID)
	}
	// the end-of-call timer and the recording webhook can both land here
	if record.Sentiment != "" {
		logger.Base().Debug("recording already analyzed", zap.String("call_id", callID))
		return nil
	}

	rec, err := p.provider.GetRecording(ctx, callID)
	if err != nil {
		return fmt.Errorf("failed to fetch recording for %s: %w", callID, err)
	}

	transcript, err := p.provider.GetTranscript(ctx, callID)
	if err != nil {
		// keep the recording URL even when the transcript is unavailable
		if updErr := p.records.UpdateFields(ctx, callID, map[string]interface{}{
			"recording_url": rec.RecordingURL,
		}); updErr != nil {
			logger.Base().Error("failed to persist recording URL",
				zap.String("call_id", callID), zap.Error(updErr))
		}
		return fmt.Errorf("failed to fetch transcript for %s: %w", callID, err)
	}

	sentiment := AnalyzeSentiment(transcript)

	if err := p.records.UpdateFields(ctx, callID, map[string]interface{}{
		"recording_url": rec.RecordingURL,
		"sentiment":     string(sentiment),
	}); err != nil {
		return fmt.Errorf("failed to persist recording results: %w", err)
	}

	logger.Base().Info("recording processed",
		zap.String("call_id", callID),
		zap.String("sentiment", string(sentiment)))

	if record.CRMContactID == "" {
		logger.Base().Info("call has no CRM contact, skipping sync",
			zap.String("call_id", callID))
		return nil
	}
	p.syncToCRM(ctx, record, rec.RecordingURL, sentiment)
	return nil
}

// syncToCRM mirrors the recording outcome onto the contact: a note carrying
// the recording URL and duration, outcome custom fields, and a sentiment tag
// appended to the existing tags. Failures are logged; the results are
// already persisted locally.
func (p *Pipeline) syncToCRM(ctx context.Context, record *domain.CallRecord, recordingURL string, sentiment Sentiment) {
	if p.crm == nil {
		return
	}
	contactID := record.CRMContactID

	note := fmt.Sprintf("Voice call %s analyzed: %s sentiment, %ds. Recording: %s",
		record.CallID, sentiment, record.DurationSeconds, recordingURL)
	if err := p.crm.AddNote(ctx, contactID, note); err != nil {
		logger.Base().Error("failed to add recording note",
			zap.String("call_id", record.CallID), zap.Error(err))
	}

	update := &crm.ContactUpdate{CustomFields: map[string]string{
		"last_call_recording": recordingURL,
		"last_call_duration":  strconv.Itoa(record.DurationSeconds),
		"last_call_sentiment": string(sentiment),
	}}

	var tag string
	switch sentiment {
	case SentimentPositive:
		tag = tagPositive
	case SentimentNegative:
		tag = tagNegative
	}
	if tag != "" {
		// read-modify-write so existing tags are preserved
		contact, err := p.crm.GetContact(ctx, contactID)
		if err != nil {
			logger.Base().Error("failed to load contact for tagging",
				zap.String("contact_id", contactID), zap.Error(err))
		} else if contact != nil && !hasTag(contact.Tags, tag) {
			update.Tags = append(append([]string{}, contact.Tags...), tag)
		}
	}

	if err := p.crm.UpdateContact(ctx, contactID, update); err != nil {
		logger.Base().Error("failed to sync call outcome to contact",
			zap.String("contact_id", contactID),
			zap.Error(err))
	}
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
