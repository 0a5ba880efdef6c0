package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records admin and verification actions.
type AuditLog struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID   string         `gorm:"index:idx_audit_trace;size:36" json:"trace_id"`
	UserID    string         `gorm:"index:idx_audit_user;size:36" json:"user_id"`
	Action    string         `gorm:"size:64;not null" json:"action"`
	Request   datatypes.JSON `json:"request"`
	Error     string         `gorm:"type:text" json:"error"`
	IP        string         `gorm:"size:45" json:"ip"`
	CreatedAt time.Time      `gorm:"index:idx_audit_created;autoCreateTime" json:"created_at"`
}
