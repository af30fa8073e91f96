package dto

import (
	"fmt"
	"time"

	"github.com/jinzhu/copier"

	"github.com/noah-isme/hackhub-api/internal/models"
)

// SubmissionCreateRequest is the JSON payload for entering a challenge.
type SubmissionCreateRequest struct {
	ChallengeID string  `json:"challengeId" validate:"required,max=64"`
	Title       string  `json:"title" validate:"required,min=3,max=255"`
	RepoURL     *string `json:"repoUrl" validate:"omitempty,url,max=1024"`
	DeckURL     *string `json:"deckUrl" validate:"omitempty,url,max=1024"`
	DemoURL     *string `json:"demoUrl" validate:"omitempty,url,max=1024"`
	Writeup     string  `json:"writeup" validate:"required,max=20000"`
}

// SubmissionFilter describes query string filters for listing submissions.
type SubmissionFilter struct {
	ChallengeID *string `query:"challengeId" validate:"omitempty,max=64"`
	Status      *string `query:"status" validate:"omitempty,oneof=pending ANALYZING ANALYZED FAILED"`
	Page        int     `query:"page" validate:"omitempty,min=1"`
	PageSize    int     `query:"pageSize" validate:"omitempty,min=1,max=100"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
// Rationale and sub-scores are only populated for judges and admins.
type SubmissionResponse struct {
	ID          string                 `json:"id"`
	UserID      string                 `json:"userId"`
	ChallengeID string                 `json:"challengeId"`
	Title       string                 `json:"title"`
	RepoURL     *string                `json:"repoUrl"`
	DeckURL     *string                `json:"deckUrl"`
	DemoURL     *string                `json:"demoUrl"`
	Writeup     string                 `json:"writeup"`
	Status      string                 `json:"status"`
	Score       *float64               `json:"score"`
	SubScores   map[string]interface{} `json:"subscores,omitempty"`
	Rationale   *string                `json:"rationale,omitempty"`
	AnalyzedAt  *time.Time             `json:"analyzedAt"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
}

// SubmissionList wraps a page of submissions.
type SubmissionList struct {
	Items      []SubmissionResponse `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}

// PaginationMeta captures pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
}

// NewSubmissionResponse converts a Submission model into a DTO. The privileged flag controls
// whether the AI rationale and sub-scores are included.
func NewSubmissionResponse(model models.Submission, privileged bool) (SubmissionResponse, error) {
	var response SubmissionResponse
	if err := copier.Copy(&response, &model); err != nil {
		return SubmissionResponse{}, fmt.Errorf("copy submission %s: %w", model.ID, err)
	}

	response.Score = model.ScoreLLM
	response.AnalyzedAt = model.AIAnalyzedAt
	if privileged {
		response.Rationale = model.RationaleMD
		if len(model.RubricScores) > 0 {
			response.SubScores = map[string]interface{}(model.RubricScores)
		}
	}

	return response, nil
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(items []models.Submission, privileged bool) ([]SubmissionResponse, error) {
	responses := make([]SubmissionResponse, 0, len(items))
	for _, submission := range items {
		response, err := NewSubmissionResponse(submission, privileged)
		if err != nil {
			return nil, err
		}
		responses = append(responses, response)
	}

	return responses, nil
}
