package repository

import (
	"context"
	"time"

	"github.com/caselink/voice-call-service/internal/domain"
	"gorm.io/gorm"
)

// CallRecordRepository defines persistence for call records.
type CallRecordRepository interface {
	Create(ctx context.Context, record *domain.CallRecord) error
	GetByCallID(ctx context.Context, callID string) (*domain.CallRecord, error)
	Update(ctx context.Context, record *domain.CallRecord) error
	UpdateFields(ctx context.Context, callID string, fields map[string]interface{}) error
	ListActive(ctx context.Context) ([]*domain.CallRecord, error)
}

// StatusEventRepository defines persistence for the append-only status history.
type StatusEventRepository interface {
	Append(ctx context.Context, event *domain.StatusEvent) error
	HistoryByCallID(ctx context.Context, callID string) ([]*domain.StatusEvent, error)
	CountByStatus(ctx context.Context, start, end time.Time) (map[domain.CallStatus]int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SecurityEventRepository defines persistence for security events.
type SecurityEventRepository interface {
	Create(ctx context.Context, event *domain.SecurityEvent) error
	StatsByRisk(ctx context.Context, start, end time.Time) (map[domain.RiskLevel]int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RepositoryManager combines all repositories.
type RepositoryManager interface {
	CallRecords() CallRecordRepository
	StatusEvents() StatusEventRepository
	SecurityEvents() SecurityEventRepository

	// Health check
	Ping(ctx context.Context) error

	// Close connection
	Close() error
}

// GormRepositoryManager implements RepositoryManager using GORM.
type GormRepositoryManager struct {
	db                *gorm.DB
	callRecordRepo    *GormCallRecordRepository
	statusEventRepo   *GormStatusEventRepository
	securityEventRepo *GormSecurityEventRepository
}

// NewGormRepositoryManager creates a new GORM repository manager.
func NewGormRepositoryManager(db *gorm.DB) *GormRepositoryManager {
	return &GormRepositoryManager{
		db:                db,
		callRecordRepo:    NewGormCallRecordRepository(db),
		statusEventRepo:   NewGormStatusEventRepository(db),
		securityEventRepo: NewGormSecurityEventRepository(db),
	}
}

// NewRepositoryManager connects to the database from env config, runs
// migrations and returns a ready manager.
func NewRepositoryManager() (RepositoryManager, error) {
	db, err := NewDatabaseConnection(LoadDatabaseConfigFromEnv())
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return NewGormRepositoryManager(db), nil
}

// CallRecords returns the call record repository.
func (m *GormRepositoryManager) CallRecords() CallRecordRepository {
	return m.callRecordRepo
}

// StatusEvents returns the status event repository.
func (m *GormRepositoryManager) StatusEvents() StatusEventRepository {
	return m.statusEventRepo
}

// SecurityEvents returns the security event repository.
func (m *GormRepositoryManager) SecurityEvents() SecurityEventRepository {
	return m.securityEventRepo
}

// Ping checks the database connection.
func (m *GormRepositoryManager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (m *GormRepositoryManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
