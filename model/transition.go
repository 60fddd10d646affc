package model

import (
	"time"

	"gorm.io/datatypes"
)

// TransitionLog is one journaled belief transition of a possessed agent.
type TransitionLog struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	ZoneID    int            `gorm:"index:idx_transition_agent,priority:1;not null" json:"zone_id"`
	Agent     string         `gorm:"index:idx_transition_agent,priority:2;size:64;not null" json:"agent"`
	FromPhase string         `gorm:"size:16;not null" json:"from"`
	ToPhase   string         `gorm:"size:16;not null" json:"to"`
	Rule      string         `gorm:"size:32;not null" json:"rule"`
	Source    string         `gorm:"size:64" json:"source"`
	Sense     string         `gorm:"size:16" json:"sense"`
	Location  datatypes.JSON `json:"location"`
	Tag       string         `gorm:"size:64" json:"tag"`
	SimTimeMs int64          `json:"sim_time_ms"`
	Belief    datatypes.JSON `json:"belief"`
	CreatedAt time.Time      `gorm:"index:idx_transition_created;autoCreateTime:milli" json:"created_at"`
}
