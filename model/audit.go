package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog is one recorded account or friend-graph action. Request and
// Response hold the JSON bodies seen at the HTTP edge and may be NULL.
type AuditLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"index:idx_audit_trace;size:36;not null" json:"trace_id"`
	UserID     *int64         `gorm:"index:idx_audit_user_action,priority:1" json:"user_id,omitempty"`
	Action     string         `gorm:"index:idx_audit_user_action,priority:2;size:32;not null" json:"action"`
	Request    datatypes.JSON `json:"request,omitempty"`
	Response   datatypes.JSON `json:"response,omitempty"`
	Error      string         `gorm:"type:text" json:"error,omitempty"`
	IP         string         `gorm:"size:45" json:"ip"`
	DurationMs int            `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
