package models

import (
	"time"

	"gorm.io/datatypes"
)

// Activity actions recorded by the analysis pipeline.
const (
	ActivityAnalysisCompleted = "analysis.completed"
	ActivityAnalysisFailed    = "analysis.failed"
	ActivityAnalysisBatch     = "analysis.batch"
)

// ActivityLog is one entry of the analysis audit trail.
type ActivityLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	ActorID    string            `gorm:"size:64;not null" json:"actor_id"`
	ActorRole  string            `gorm:"size:32;not null" json:"actor_role"`
	Action     string            `gorm:"size:64;not null;index" json:"action"`
	EntityType string            `gorm:"size:64;not null" json:"entity_type"`
	EntityID   string            `gorm:"size:64;index" json:"entity_id"`
	Metadata   datatypes.JSONMap `json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}
