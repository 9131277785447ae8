package recording

import (
	"context"
	"errors"
	"testing"

	"github.com/caselink/voice-call-service/internal/adapters/crm"
	"github.com/caselink/voice-call-service/internal/adapters/telephony"
	"github.com/caselink/voice-call-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	telephony.Provider

	recording     *telephony.Recording
	recordingErr  error
	transcript    string
	transcriptErr error
}

func (s *stubProvider) GetRecording(_ context.Context, _ string) (*telephony.Recording, error) {
	return s.recording, s.recordingErr
}

func (s *stubProvider) GetTranscript(_ context.Context, _ string) (string, error) {
	return s.transcript, s.transcriptErr
}

type memRecords struct {
	records map[string]*domain.CallRecord
	updates map[string]map[string]interface{}
}

func newMemRecords(records ...*domain.CallRecord) *memRecords {
	m := &memRecords{
		records: make(map[string]*domain.CallRecord),
		updates: make(map[string]map[string]interface{}),
	}
	for _, r := range records {
		m.records[r.CallID] = r
	}
	return m
}

func (m *memRecords) Create(_ context.Context, r *domain.CallRecord) error {
	m.records[r.CallID] = r
	return nil
}

func (m *memRecords) GetByCallID(_ context.Context, callID string) (*domain.CallRecord, error) {
	return m.records[callID], nil
}

func (m *memRecords) Update(_ context.Context, r *domain.CallRecord) error {
	m.records[r.CallID] = r
	return nil
}

func (m *memRecords) UpdateFields(_ context.Context, callID string, fields map[string]interface{}) error {
	merged := m.updates[callID]
	if merged == nil {
		merged = make(map[string]interface{})
		m.updates[callID] = merged
	}
	for k, v := range fields {
		merged[k] = v
	}
	return nil
}

func (m *memRecords) ListActive(_ context.Context) ([]*domain.CallRecord, error) {
	return nil, nil
}

type stubCRM struct {
	crm.Client

	contact *crm.Contact
	notes   []string
	updates []*crm.ContactUpdate
}

func (s *stubCRM) GetContact(_ context.Context, _ string) (*crm.Contact, error) {
	return s.contact, nil
}

func (s *stubCRM) UpdateContact(_ context.Context, _ string, update *crm.ContactUpdate) error {
	s.updates = append(s.updates, update)
	return nil
}

func (s *stubCRM) AddNote(_ context.Context, _, note string) error {
	s.notes = append(s.notes, note)
	return nil
}

func TestProcessRecordingSyncsOutcomeToContact(t *testing.T) {
	records := newMemRecords(&domain.CallRecord{
		CallID:          "c-1",
		CRMContactID:    "contact-1",
		DurationSeconds: 142,
	})
	provider := &stubProvider{
		recording:  &telephony.Recording{RecordingURL: "https://cdn.example.com/c-1.mp3"},
		transcript: "thank you, this was perfect and very helpful",
	}
	crmClient := &stubCRM{contact: &crm.Contact{ID: "contact-1", Tags: []string{"lead", "spanish"}}}

	p := NewPipeline(provider, records, crmClient)
	require.NoError(t, p.ProcessRecording(context.Background(), "c-1"))

	updates := records.updates["c-1"]
	assert.Equal(t, "https://cdn.example.com/c-1.mp3", updates["recording_url"])
	assert.Equal(t, "positive", updates["sentiment"])

	require.Len(t, crmClient.updates, 1)
	update := crmClient.updates[0]
	assert.Equal(t, []string{"lead", "spanish", "call-positive"}, update.Tags)
	assert.Equal(t, "https://cdn.example.com/c-1.mp3", update.CustomFields["last_call_recording"])
	assert.Equal(t, "142", update.CustomFields["last_call_duration"])
	assert.Equal(t, "positive", update.CustomFields["last_call_sentiment"])

	require.Len(t, crmClient.notes, 1)
	assert.Contains(t, crmClient.notes[0], "https://cdn.example.com/c-1.mp3")
	assert.Contains(t, crmClient.notes[0], "142s")
}

func TestProcessRecordingTagsNegativeCall(t *testing.T) {
	records := newMemRecords(&domain.CallRecord{CallID: "c-2", CRMContactID: "contact-2"})
	provider := &stubProvider{
		recording:  &telephony.Recording{RecordingURL: "url"},
		transcript: "this is terrible, I want a refund, worst experience",
	}
	crmClient := &stubCRM{contact: &crm.Contact{ID: "contact-2"}}

	p := NewPipeline(provider, records, crmClient)
	require.NoError(t, p.ProcessRecording(context.Background(), "c-2"))

	assert.Equal(t, "negative", records.updates["c-2"]["sentiment"])
	require.Len(t, crmClient.updates, 1)
	assert.Equal(t, []string{"call-negative"}, crmClient.updates[0].Tags)
}

func TestProcessRecordingNeutralSkipsTagging(t *testing.T) {
	records := newMemRecords(&domain.CallRecord{CallID: "c-3", CRMContactID: "contact-3"})
	provider := &stubProvider{
		recording:  &telephony.Recording{RecordingURL: "url"},
		transcript: "please call me back next week",
	}
	crmClient := &stubCRM{contact: &crm.Contact{ID: "contact-3"}}

	p := NewPipeline(provider, records, crmClient)
	require.NoError(t, p.ProcessRecording(context.Background(), "c-3"))

	require.Len(t, crmClient.updates, 1)
	assert.Empty(t, crmClient.updates[0].Tags)
	assert.Equal(t, "neutral", crmClient.updates[0].CustomFields["last_call_sentiment"])
	// the analysis note is still left on the contact
	assert.Len(t, crmClient.notes, 1)
}

func TestProcessRecordingDoesNotDuplicateTag(t *testing.T) {
	records := newMemRecords(&domain.CallRecord{CallID: "c-4", CRMContactID: "contact-4"})
	provider := &stubProvider{
		recording:  &telephony.Recording{RecordingURL: "url"},
		transcript: "great, thanks",
	}
	crmClient := &stubCRM{contact: &crm.Contact{ID: "contact-4", Tags: []string{"call-positive"}}}

	p := NewPipeline(provider, records, crmClient)
	require.NoError(t, p.ProcessRecording(context.Background(), "c-4"))

	require.Len(t, crmClient.updates, 1)
	assert.Empty(t, crmClient.updates[0].Tags)
}

func TestProcessRecordingWithoutContactRecordsURLOnly(t *testing.T) {
	records := newMemRecords(&domain.CallRecord{CallID: "c-5"})
	provider := &stubProvider{
		recording:  &telephony.Recording{RecordingURL: "url"},
		transcript: "great call",
	}
	crmClient := &stubCRM{}

	p := NewPipeline(provider, records, crmClient)
	require.NoError(t, p.ProcessRecording(context.Background(), "c-5"))

	assert.Equal(t, "url", records.updates["c-5"]["recording_url"])
	assert.Empty(t, crmClient.notes)
	assert.Empty(t, crmClient.updates)
}

func TestProcessRecordingFetchFailureAborts(t *testing.T) {
	records := newMemRecords(&domain.CallRecord{CallID: "c-6", CRMContactID: "contact-6"})
	provider := &stubProvider{recordingErr: errors.New("recording not ready")}

	p := NewPipeline(provider, records, &stubCRM{})
	err := p.ProcessRecording(context.Background(), "c-6")

	require.Error(t, err)
	assert.Empty(t, records.updates["c-6"])
}

func TestProcessRecordingTranscriptFailureKeepsURL(t *testing.T) {
	records := newMemRecords(&domain.CallRecord{CallID: "c-7", CRMContactID: "contact-7"})
	provider := &stubProvider{
		recording:     &telephony.Recording{RecordingURL: "url"},
		transcriptErr: errors.New("transcript unavailable"),
	}

	p := NewPipeline(provider, records, &stubCRM{})
	err := p.ProcessRecording(context.Background(), "c-7")

	require.Error(t, err)
	assert.Equal(t, "url", records.updates["c-7"]["recording_url"])
	_, hasSentiment := records.updates["c-7"]["sentiment"]
	assert.False(t, hasSentiment)
}

func TestProcessRecordingUnknownCall(t *testing.T) {
	p := NewPipeline(&stubProvider{}, newMemRecords(), &stubCRM{})
	assert.Error(t, p.ProcessRecording(context.Background(), "ghost"))
}

func TestProcessRecordingSkipsAlreadyAnalyzedCall(t *testing.T) {
	records := newMemRecords(&domain.CallRecord{
		CallID:       "c-8",
		CRMContactID: "contact-8",
		Sentiment:    "positive",
	})
	provider := &stubProvider{recordingErr: errors.New("should not be fetched")}
	crmClient := &stubCRM{}

	p := NewPipeline(provider, records, crmClient)
	require.NoError(t, p.ProcessRecording(context.Background(), "c-8"))

	assert.Empty(t, records.updates["c-8"])
	assert.Empty(t, crmClient.notes)
}
