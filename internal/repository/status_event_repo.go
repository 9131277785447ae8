package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/caselink/voice-call-service/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStatusEventRepository handles the append-only status history.
type GormStatusEventRepository struct {
	db *gorm.DB
}

// NewGormStatusEventRepository creates a new status event repository.
func NewGormStatusEventRepository(db *gorm.DB) *GormStatusEventRepository {
	return &GormStatusEventRepository{db: db}
}

// Append records one status transition. Events are never updated or
// reordered after this point.
func (r *GormStatusEventRepository) Append(ctx context.Context, event *domain.StatusEvent) error {
	if event.CallID == "" {
		return fmt.Errorf("call id cannot be empty")
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to append status event: %w", err)
	}
	return nil
}

// HistoryByCallID returns the transition history for a call, oldest first.
func (r *GormStatusEventRepository) HistoryByCallID(ctx context.Context, callID string) ([]*domain.StatusEvent, error) {
	var events []*domain.StatusEvent
	if err := r.db.WithContext(ctx).
		Where("call_id = ?", callID).
		Order("timestamp ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to get status history: %w", err)
	}
	return events, nil
}

// CountByStatus returns the status distribution of transitions in the range.
func (r *GormStatusEventRepository) CountByStatus(ctx context.Context, start, end time.Time) (map[domain.CallStatus]int64, error) {
	type row struct {
		NewStatus domain.CallStatus
		Total     int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&domain.StatusEvent{}).
		Select("new_status, COUNT(*) AS total").
		Where("timestamp BETWEEN ? AND ?", start, end).
		Group("new_status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count status events: %w", err)
	}

	counts := make(map[domain.CallStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.NewStatus] = r.Total
	}
	return counts, nil
}

// DeleteOlderThan removes status events older than the cutoff and returns
// the number deleted.
func (r *GormStatusEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&domain.StatusEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old status events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
