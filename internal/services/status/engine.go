package status

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/caselink/voice-call-service/internal/adapters/crm"
	"github.com/caselink/voice-call-service/internal/core/task"
	"github.com/caselink/voice-call-service/internal/domain"
	"github.com/caselink/voice-call-service/internal/repository"
	"github.com/caselink/voice-call-service/pkg/logger"
	"go.uber.org/zap"
)

// ErrCallNotFound is returned when no state exists for a call id.
var ErrCallNotFound = errors.New("call not found")

// ErrUnknownStatus is returned for a status outside the lifecycle enum.
var ErrUnknownStatus = errors.New("unknown call status")

// Update is delivered to subscribers on every transition.
type Update struct {
	CallID         string            `json:"call_id"`
	PreviousStatus domain.CallStatus `json:"previous_status"`
	NewStatus      domain.CallStatus `json:"new_status"`
	Timestamp      time.Time         `json:"timestamp"`
	Metadata       domain.JSONB      `json:"metadata,omitempty"`
}

// Retrier schedules a fresh call attempt for a busy line. The call router
// satisfies it.
type Retrier interface {
	RetryBusyCall(ctx context.Context, original *domain.CallRecord) error
}

// Delays holds every timer the engine arms. Tests shrink them to
// milliseconds; production uses the defaults.
type Delays struct {
	// StuckQueue is how long a call may sit queued before it is failed.
	StuckQueue time.Duration
	// RingingTimeout is how long a call may ring before it is marked
	// no_answer.
	RingingTimeout time.Duration
	// BusyRetry is how long after a busy signal the retry attempt fires.
	BusyRetry time.Duration
	// RecordingDelay is how long after a call ends before recording
	// analysis is scheduled, giving the provider time to finalize media.
	RecordingDelay time.Duration
	// ListenerEviction is how long after a terminal status subscribers are
	// kept before their channels are closed.
	ListenerEviction time.Duration
}

// DefaultDelays returns the production timer configuration.
func DefaultDelays() Delays {
	return Delays{
		StuckQueue:       2 * time.Minute,
		RingingTimeout:   30 * time.Second,
		BusyRetry:        15 * time.Minute,
		RecordingDelay:   5 * time.Second,
		ListenerEviction: 5 * time.Minute,
	}
}

// Campaigns holds the CRM campaign ids the engine triggers per outcome.
// Empty ids disable the corresponding trigger.
type Campaigns struct {
	PostCall  string
	NoAnswer  string
	Voicemail string
}

// Engine drives the call lifecycle: it applies transitions, persists them,
// fans them out to subscribers and runs the per-status side effects.
type Engine struct {
	records   repository.CallRecordRepository
	events    repository.StatusEventRepository
	store     StateStore
	crm       crm.Client
	tasks     task.Bus
	retrier   Retrier
	campaigns Campaigns
	delays    Delays

	timersMu sync.Mutex
	timers   map[string]*time.Timer

	subsMu sync.Mutex
	subs   map[string][]chan Update
}

// NewEngine creates an engine. crm, tasks and retrier may be nil; the
// corresponding side effects then degrade to log lines.
func NewEngine(
	records repository.CallRecordRepository,
	events repository.StatusEventRepository,
	store StateStore,
	crmClient crm.Client,
	tasks task.Bus,
	retrier Retrier,
	campaigns Campaigns,
	delays Delays,
) *Engine {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Engine{
		records:   records,
		events:    events,
		store:     store,
		crm:       crmClient,
		tasks:     tasks,
		retrier:   retrier,
		campaigns: campaigns,
		delays:    delays,
		timers:    make(map[string]*time.Timer),
		subs:      make(map[string][]chan Update),
	}
}

// SetRetrier installs the busy-retry collaborator. The router needs the
// engine to seed statuses and the engine needs the router for retries, so
// the retrier is attached after both exist.
func (e *Engine) SetRetrier(r Retrier) {
	e.retrier = r
}

// UpdateStatus applies one transition. It persists first, then notifies
// subscribers, then runs side effects. Side-effect failures are logged and
// never surfaced; a dropped webhook retry must not double-apply effects.
func (e *Engine) UpdateStatus(ctx context.Context, callID string, newStatus domain.CallStatus, metadata domain.JSONB) error {
	if !domain.KnownStatus(newStatus) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, newStatus)
	}

	previous, _, err := e.store.Get(ctx, callID)
	if err != nil {
		logger.Base().Error("state store read failed", zap.String("call_id", callID), zap.Error(err))
	}

	record, err := e.loadOrCreateRecord(ctx, callID, metadata)
	if err != nil {
		logger.Base().Error("failed to load call record",
			zap.String("call_id", callID), zap.Error(err))
	}
	if previous == "" && record != nil {
		previous = record.Status
	}

	now := time.Now()

	// persist
	if err := e.store.Set(ctx, callID, newStatus); err != nil {
		return fmt.Errorf("failed to store call status: %w", err)
	}
	e.persistTransition(ctx, callID, record, previous, newStatus, now, metadata)

	logger.Base().Info("call status updated",
		zap.String("call_id", callID),
		zap.String("previous", string(previous)),
		zap.String("status", string(newStatus)))

	// notify
	update := Update{
		CallID:         callID,
		PreviousStatus: previous,
		NewStatus:      newStatus,
		Timestamp:      now,
		Metadata:       metadata,
	}
	e.notify(update)

	// side effects
	e.cancelTimer(callID)
	e.runSideEffects(ctx, callID, record, newStatus, metadata)

	if newStatus.IsTerminal() {
		e.scheduleEviction(callID)
	}
	return nil
}

// GetCurrentStatus returns the live status for callID, falling back to the
// durable record when the store has no entry.
func (e *Engine) GetCurrentStatus(ctx context.Context, callID string) (domain.CallStatus, error) {
	st, ok, err := e.store.Get(ctx, callID)
	if err == nil && ok {
		return st, nil
	}
	record, err := e.records.GetByCallID(ctx, callID)
	if err != nil {
		return "", fmt.Errorf("failed to load call record: %w", err)
	}
	if record == nil {
		return "", ErrCallNotFound
	}
	// backfill the store so the next read is a hit
	if err := e.store.Set(ctx, callID, record.Status); err != nil {
		logger.Base().Warn("state store backfill failed", zap.String("call_id", callID), zap.Error(err))
	}
	return record.Status, nil
}

// GetActiveCalls returns every call still in flight, oldest first.
func (e *Engine) GetActiveCalls(ctx context.Context) ([]*domain.CallRecord, error) {
	return e.records.ListActive(ctx)
}

// GetHistory returns the transition history for callID, oldest first.
func (e *Engine) GetHistory(ctx context.Context, callID string) ([]*domain.StatusEvent, error) {
	return e.events.HistoryByCallID(ctx, callID)
}

// CountByStatus aggregates transitions per status over [start, end).
func (e *Engine) CountByStatus(ctx context.Context, start, end time.Time) (map[domain.CallStatus]int64, error) {
	return e.events.CountByStatus(ctx, start, end)
}

// Subscribe registers a listener for callID. The current status, when one
// exists, is replayed as the first update. The returned func unsubscribes;
// the engine also closes the channel some time after a terminal status.
func (e *Engine) Subscribe(ctx context.Context, callID string) (<-chan Update, func()) {
	ch := make(chan Update, 8)
	st, known, err := e.store.Get(ctx, callID)

	// register and replay under the same lock hold, so the eviction timer
	// cannot close ch before the replay send lands
	e.subsMu.Lock()
	e.subs[callID] = append(e.subs[callID], ch)
	if err == nil && known {
		ch <- Update{CallID: callID, NewStatus: st, Timestamp: time.Now()}
	}
	e.subsMu.Unlock()

	unsubscribe := func() {
		e.subsMu.Lock()
		defer e.subsMu.Unlock()
		chans := e.subs[callID]
		for i, c := range chans {
			if c == ch {
				e.subs[callID] = append(chans[:i], chans[i+1:]...)
				close(c)
				break
			}
		}
		if len(e.subs[callID]) == 0 {
			delete(e.subs, callID)
		}
	}
	return ch, unsubscribe
}

// Stop cancels every pending timer. Used on shutdown.
func (e *Engine) Stop() {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
}

func (e *Engine) loadOrCreateRecord(ctx context.Context, callID string, metadata domain.JSONB) (*domain.CallRecord, error) {
	record, err := e.records.GetByCallID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if record != nil {
		return record, nil
	}
	// inbound calls arrive without a routed record; create a minimal one
	record = &domain.CallRecord{
		CallID:      callID,
		PhoneNumber: stringFromMeta(metadata, "from_number"),
		AgentID:     stringFromMeta(metadata, "agent_id"),
		Status:      domain.CallStatusQueued,
		Metadata:    metadata,
	}
	if err := e.records.Create(ctx, record); err != nil {
		return nil, err
	}
	logger.Base().Info("created call record for unrouted call", zap.String("call_id", callID))
	return record, nil
}

func (e *Engine) persistTransition(ctx context.Context, callID string, record *domain.CallRecord, previous, newStatus domain.CallStatus, now time.Time, metadata domain.JSONB) {
	fields := map[string]interface{}{"status": newStatus}
	switch newStatus {
	case domain.CallStatusConnected:
		fields["connected_at"] = now
	case domain.CallStatusEnded:
		fields["ended_at"] = now
		if ms, ok := numberFromMeta(metadata, "duration_ms"); ok {
			fields["duration_seconds"] = int(ms / 1000)
		} else if record != nil && record.ConnectedAt != nil {
			fields["duration_seconds"] = int(now.Sub(*record.ConnectedAt).Seconds())
		}
	case domain.CallStatusFailed:
		if reason := stringFromMeta(metadata, "reason"); reason != "" {
			fields["last_error"] = reason
		}
	}
	if err := e.records.UpdateFields(ctx, callID, fields); err != nil {
		logger.Base().Error("failed to persist call record update",
			zap.String("call_id", callID), zap.Error(err))
	}

	event := &domain.StatusEvent{
		CallID:         callID,
		PreviousStatus: previous,
		NewStatus:      newStatus,
		Timestamp:      now,
		Metadata:       metadata,
	}
	if err := e.events.Append(ctx, event); err != nil {
		logger.Base().Error("failed to append status event",
			zap.String("call_id", callID), zap.Error(err))
	}
}

// notify sends under subsMu so an unsubscribe or eviction cannot close a
// channel between the lookup and the send. Sends never block: a full
// subscriber buffer drops the update instead.
func (e *Engine) notify(update Update) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	for _, ch := range e.subs[update.CallID] {
		select {
		case ch <- update:
		default:
			logger.Base().Warn("dropping status update for slow subscriber",
				zap.String("call_id", update.CallID))
		}
	}
}

func (e *Engine) runSideEffects(ctx context.Context, callID string, record *domain.CallRecord, newStatus domain.CallStatus, metadata domain.JSONB) {
	switch newStatus {
	case domain.CallStatusQueued:
		e.armGuardedTimer(callID, domain.CallStatusQueued, e.delays.StuckQueue, func() {
			logger.Base().Warn("call stuck in queue, failing", zap.String("call_id", callID))
			if err := e.UpdateStatus(context.Background(), callID, domain.CallStatusFailed,
				domain.JSONB{"reason": "queue timeout"}); err != nil {
				logger.Base().Error("queue timeout transition failed",
					zap.String("call_id", callID), zap.Error(err))
			}
		})

	case domain.CallStatusRinging:
		e.armGuardedTimer(callID, domain.CallStatusRinging, e.delays.RingingTimeout, func() {
			logger.Base().Info("ringing timed out, marking no answer", zap.String("call_id", callID))
			if err := e.UpdateStatus(context.Background(), callID, domain.CallStatusNoAnswer,
				domain.JSONB{"reason": "ringing timeout"}); err != nil {
				logger.Base().Error("ringing timeout transition failed",
					zap.String("call_id", callID), zap.Error(err))
			}
		})

	case domain.CallStatusFailed:
		e.mirrorToCRM(ctx, record, newStatus)
		e.createFollowUpTask(ctx, record, "Follow up on failed call",
			fmt.Sprintf("Call %s failed. Reason: %s", callID, stringFromMeta(metadata, "reason")), time.Hour)

	case domain.CallStatusNoAnswer:
		e.mirrorToCRM(ctx, record, newStatus)
		e.createFollowUpTask(ctx, record, "Follow up on unanswered call",
			fmt.Sprintf("Call %s was not answered.", callID), 4*time.Hour)
		e.triggerCampaign(ctx, record, e.campaigns.NoAnswer)

	case domain.CallStatusBusy:
		e.mirrorToCRM(ctx, record, newStatus)
		e.scheduleBusyRetry(callID, record)

	case domain.CallStatusVoicemail:
		e.mirrorToCRM(ctx, record, newStatus)
		e.triggerCampaign(ctx, record, e.campaigns.Voicemail)

	case domain.CallStatusConnected:
		e.mirrorToCRM(ctx, record, newStatus)

	case domain.CallStatusEnded:
		e.mirrorToCRM(ctx, record, newStatus)
		e.triggerCampaign(ctx, record, e.campaigns.PostCall)
		e.scheduleRecordingAnalysis(callID)
	}
}

// armGuardedTimer schedules fn after delay unless the call has moved past
// expected in the meantime. Only one timer exists per call id at a time.
func (e *Engine) armGuardedTimer(callID string, expected domain.CallStatus, delay time.Duration, fn func()) {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()

	if t, ok := e.timers[callID]; ok {
		t.Stop()
	}
	e.timers[callID] = time.AfterFunc(delay, func() {
		e.timersMu.Lock()
		delete(e.timers, callID)
		e.timersMu.Unlock()

		current, err := e.GetCurrentStatus(context.Background(), callID)
		if err != nil {
			logger.Base().Warn("timer guard check failed",
				zap.String("call_id", callID), zap.Error(err))
			return
		}
		if current != expected {
			return
		}
		fn()
	})
}

func (e *Engine) cancelTimer(callID string) {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()
	if t, ok := e.timers[callID]; ok {
		t.Stop()
		delete(e.timers, callID)
	}
}

func (e *Engine) scheduleBusyRetry(callID string, record *domain.CallRecord) {
	if e.retrier == nil || record == nil {
		return
	}
	retried := *record
	time.AfterFunc(e.delays.BusyRetry, func() {
		logger.Base().Info("retrying busy call", zap.String("original_call_id", callID))
		if err := e.retrier.RetryBusyCall(context.Background(), &retried); err != nil {
			logger.Base().Error("busy retry failed",
				zap.String("original_call_id", callID), zap.Error(err))
		}
	})
}

func (e *Engine) scheduleRecordingAnalysis(callID string) {
	if e.tasks == nil {
		return
	}
	time.AfterFunc(e.delays.RecordingDelay, func() {
		t := &task.Task{
			Type:   task.TypeAnalyzeRecording,
			CallID: callID,
		}
		if err := e.tasks.Publish(context.Background(), t); err != nil {
			logger.Base().Error("failed to schedule recording analysis",
				zap.String("call_id", callID), zap.Error(err))
		}
	})
}

func (e *Engine) scheduleEviction(callID string) {
	time.AfterFunc(e.delays.ListenerEviction, func() {
		e.subsMu.Lock()
		for _, ch := range e.subs[callID] {
			close(ch)
		}
		delete(e.subs, callID)
		e.subsMu.Unlock()

		if err := e.store.Delete(context.Background(), callID); err != nil {
			logger.Base().Warn("failed to evict call state",
				zap.String("call_id", callID), zap.Error(err))
		}
	})
}

func (e *Engine) mirrorToCRM(ctx context.Context, record *domain.CallRecord, newStatus domain.CallStatus) {
	if e.crm == nil || record == nil || record.CRMContactID == "" {
		return
	}
	update := &crm.ContactUpdate{
		CustomFields: map[string]string{
			"voice_call_status": string(newStatus),
			"call_in_progress":  strconv.FormatBool(newStatus.IsActive()),
		},
	}
	if err := e.crm.UpdateContact(ctx, record.CRMContactID, update); err != nil {
		logger.Base().Error("failed to mirror status to CRM",
			zap.String("call_id", record.CallID), zap.Error(err))
	}
	note := fmt.Sprintf("Voice call %s: %s", record.CallID, describeStatus(newStatus))
	if err := e.crm.AddNote(ctx, record.CRMContactID, note); err != nil {
		logger.Base().Error("failed to add CRM note",
			zap.String("call_id", record.CallID), zap.Error(err))
	}
}

func (e *Engine) createFollowUpTask(ctx context.Context, record *domain.CallRecord, title, description string, due time.Duration) {
	if e.crm == nil || record == nil || record.CRMContactID == "" {
		return
	}
	t := &crm.Task{
		ContactID:   record.CRMContactID,
		Title:       title,
		Description: description,
		DueDate:     time.Now().Add(due),
	}
	if err := e.crm.CreateTask(ctx, t); err != nil {
		logger.Base().Error("failed to create follow-up task",
			zap.String("call_id", record.CallID), zap.Error(err))
	}
}

func (e *Engine) triggerCampaign(ctx context.Context, record *domain.CallRecord, campaignID string) {
	if e.crm == nil || record == nil || record.CRMContactID == "" || campaignID == "" {
		return
	}
	if err := e.crm.TriggerCampaign(ctx, record.CRMContactID, campaignID); err != nil {
		logger.Base().Error("failed to trigger campaign",
			zap.String("call_id", record.CallID),
			zap.String("campaign_id", campaignID),
			zap.Error(err))
	}
}

// describeStatus renders a status for human-facing CRM notes.
func describeStatus(s domain.CallStatus) string {
	switch s {
	case domain.CallStatusQueued:
		return "call queued"
	case domain.CallStatusRinging:
		return "phone ringing"
	case domain.CallStatusConnected:
		return "call in progress"
	case domain.CallStatusEnded:
		return "call completed"
	case domain.CallStatusFailed:
		return "call failed"
	case domain.CallStatusNoAnswer:
		return "no answer"
	case domain.CallStatusBusy:
		return "line busy"
	case domain.CallStatusVoicemail:
		return "reached voicemail"
	default:
		return string(s)
	}
}

func stringFromMeta(m domain.JSONB, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func numberFromMeta(m domain.JSONB, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
