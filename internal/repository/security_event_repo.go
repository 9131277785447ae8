package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/caselink/voice-call-service/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormSecurityEventRepository handles database operations for security events.
type GormSecurityEventRepository struct {
	db *gorm.DB
}

// NewGormSecurityEventRepository creates a new security event repository.
func NewGormSecurityEventRepository(db *gorm.DB) *GormSecurityEventRepository {
	return &GormSecurityEventRepository{db: db}
}

// Create records a security event.
func (r *GormSecurityEventRepository) Create(ctx context.Context, event *domain.SecurityEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Service == "" {
		event.Service = "call-lifecycle"
	}

	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to create security event: %w", err)
	}
	return nil
}

// StatsByRisk returns the risk-level distribution of events in the range.
func (r *GormSecurityEventRepository) StatsByRisk(ctx context.Context, start, end time.Time) (map[domain.RiskLevel]int64, error) {
	type row struct {
		RiskLevel domain.RiskLevel
		Total     int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&domain.SecurityEvent{}).
		Select("risk_level, COUNT(*) AS total").
		Where("timestamp BETWEEN ? AND ?", start, end).
		Group("risk_level").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count security events: %w", err)
	}

	stats := make(map[domain.RiskLevel]int64, len(rows))
	for _, r := range rows {
		stats[r.RiskLevel] = r.Total
	}
	return stats, nil
}

// DeleteOlderThan removes security events older than the cutoff and returns
// the number deleted.
func (r *GormSecurityEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&domain.SecurityEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old security events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
