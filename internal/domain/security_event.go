package domain

import (
	"time"
)

// SecurityEvent records a non-low-risk finding from the security gate.
type SecurityEvent struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey"`
	Type      string    `json:"type" gorm:"column:type;index"`
	RiskLevel RiskLevel `json:"risk_level" gorm:"column:risk_level;index"`
	Details   JSONB     `json:"details" gorm:"column:details;type:jsonb"`
	Service   string    `json:"service" gorm:"column:service"`
	Timestamp time.Time `json:"timestamp" gorm:"column:timestamp;index"`
}

func (SecurityEvent) TableName() string {
	return "security_events"
}
