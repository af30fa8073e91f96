package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Submission lifecycle values used by the analysis pipeline.
const (
	SubmissionStatusPending   = "pending"
	SubmissionStatusAnalyzing = "ANALYZING"
	SubmissionStatusAnalyzed  = "ANALYZED"
	SubmissionStatusFailed    = "FAILED"
)

// Submission is a competitor's entry to a challenge together with its AI analysis fields.
type Submission struct {
	ID                 string            `gorm:"primaryKey;size:36" json:"id"`
	UserID             string            `gorm:"size:64;index;not null" json:"user_id"`
	ChallengeID        string            `gorm:"size:36;index;not null" json:"challenge_id"`
	Title              string            `gorm:"size:255" json:"title"`
	RepoURL            *string           `gorm:"column:repo_url;size:1024" json:"repo_url"`
	DeckURL            *string           `gorm:"column:deck_url;size:1024" json:"deck_url"`
	DemoURL            *string           `gorm:"column:demo_url;size:1024" json:"demo_url"`
	Writeup            string            `gorm:"type:text" json:"writeup"`
	Status             string            `gorm:"size:32;index;not null;default:pending" json:"status"`
	ScoreLLM           *float64          `gorm:"column:score_llm" json:"score_llm"`
	RubricScores       datatypes.JSONMap `gorm:"column:rubric_scores_json" json:"rubric_scores_json"`
	RationaleMD        *string           `gorm:"column:rationale_md;type:text" json:"rationale_md"`
	AIDetailedAnalysis datatypes.JSONMap `gorm:"column:ai_detailed_analysis" json:"ai_detailed_analysis"`
	AIAnalyzedAt       *time.Time        `gorm:"column:ai_analyzed_at" json:"ai_analyzed_at"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// BeforeCreate assigns a UUID primary key and the initial status.
func (s *Submission) BeforeCreate(_ *gorm.DB) error {
	if strings.TrimSpace(s.ID) == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = SubmissionStatusPending
	}
	return nil
}

// IsAnalyzed reports whether an analysis result has been persisted.
func (s Submission) IsAnalyzed() bool {
	return s.AIAnalyzedAt != nil
}

// IsOwnedBy reports whether the given user created the submission.
func (s Submission) IsOwnedBy(userID string) bool {
	userID = strings.TrimSpace(userID)
	return userID != "" && userID == s.UserID
}

// RepoLink returns the repository URL or an empty string.
func (s Submission) RepoLink() string { return deref(s.RepoURL) }

// DeckLink returns the pitch-deck URL or an empty string.
func (s Submission) DeckLink() string { return deref(s.DeckURL) }

// DemoLink returns the demo URL or an empty string.
func (s Submission) DemoLink() string { return deref(s.DemoURL) }

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}
