package dto

import (
	"time"

	"github.com/noah-isme/hackhub-api/internal/models"
)

// ActivityListRequest defines filters for retrieving the analysis audit trail.
type ActivityListRequest struct {
	SubmissionID string `query:"submissionId" validate:"omitempty,max=64"`
	ActorID      string `query:"actorId" validate:"omitempty,max=64"`
	Action       string `query:"action" validate:"omitempty,oneof=analysis.completed analysis.failed analysis.batch"`
	Page         int    `query:"page" validate:"omitempty,min=1"`
	PageSize     int    `query:"pageSize" validate:"omitempty,min=1,max=200"`
}

// ActivityResponse serializes activity log entries.
type ActivityResponse struct {
	ID         uint                   `json:"id"`
	ActorID    string                 `json:"actorId"`
	ActorRole  string                 `json:"actorRole"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entityType"`
	EntityID   string                 `json:"entityId"`
	Metadata   map[string]interface{} `json:"metadata"`
	CreatedAt  time.Time              `json:"createdAt"`
}

// ActivityListResponse wraps paginated activity logs.
type ActivityListResponse struct {
	Items      []ActivityResponse `json:"items"`
	Pagination PaginationMeta     `json:"pagination"`
}

// NewActivityResponse converts a model into an activity DTO.
func NewActivityResponse(entry models.ActivityLog) ActivityResponse {
	metadata := map[string]interface{}{}
	for key, value := range entry.Metadata {
		metadata[key] = value
	}

	return ActivityResponse{
		ID:         entry.ID,
		ActorID:    entry.ActorID,
		ActorRole:  entry.ActorRole,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Metadata:   metadata,
		CreatedAt:  entry.CreatedAt,
	}
}
