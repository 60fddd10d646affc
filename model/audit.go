package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records operator actions against the perception server.
type AuditLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"index:idx_audit_trace;size:36;not null" json:"trace_id"`
	Operator   string         `gorm:"size:64" json:"operator"`
	Action     string         `gorm:"size:64;not null" json:"action"`
	ZoneID     int            `gorm:"index:idx_audit_zone" json:"zone_id"`
	Agent      string         `gorm:"size:64" json:"agent"`
	Request    datatypes.JSON `json:"request"`
	Error      string         `gorm:"type:text" json:"error"`
	IP         string         `gorm:"size:45" json:"ip"`
	DurationMs int            `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
