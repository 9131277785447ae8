package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/caselink/voice-call-service/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormCallRecordRepository handles database operations for call records.
type GormCallRecordRepository struct {
	db *gorm.DB
}

// NewGormCallRecordRepository creates a new call record repository.
func NewGormCallRecordRepository(db *gorm.DB) *GormCallRecordRepository {
	return &GormCallRecordRepository{db: db}
}

// Create creates a new call record.
func (r *GormCallRecordRepository) Create(ctx context.Context, record *domain.CallRecord) error {
	if record.CallID == "" {
		return fmt.Errorf("call id cannot be empty")
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	record.UpdatedAt = time.Now()

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create call record: %w", err)
	}
	return nil
}

// GetByCallID retrieves a call record by its provider-issued call id.
// Returns nil, nil when no record exists.
func (r *GormCallRecordRepository) GetByCallID(ctx context.Context, callID string) (*domain.CallRecord, error) {
	var record domain.CallRecord
	if err := r.db.WithContext(ctx).Where("call_id = ?", callID).First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get call record: %w", err)
	}
	return &record, nil
}

// Update saves an existing call record.
func (r *GormCallRecordRepository) Update(ctx context.Context, record *domain.CallRecord) error {
	record.UpdatedAt = time.Now()
	if err := r.db.WithContext(ctx).Save(record).Error; err != nil {
		return fmt.Errorf("failed to update call record: %w", err)
	}
	return nil
}

// UpdateFields applies a partial update to the record with the given call id.
func (r *GormCallRecordRepository) UpdateFields(ctx context.Context, callID string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	if err := r.db.WithContext(ctx).
		Model(&domain.CallRecord{}).
		Where("call_id = ?", callID).
		Updates(fields).Error; err != nil {
		return fmt.Errorf("failed to update call record fields: %w", err)
	}
	return nil
}

// ListActive returns all call records in a non-terminal status.
func (r *GormCallRecordRepository) ListActive(ctx context.Context) ([]*domain.CallRecord, error) {
	var records []*domain.CallRecord
	if err := r.db.WithContext(ctx).
		Where("status IN ?", []domain.CallStatus{
			domain.CallStatusQueued,
			domain.CallStatusRinging,
			domain.CallStatusConnected,
		}).
		Order("created_at ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list active call records: %w", err)
	}
	return records, nil
}
