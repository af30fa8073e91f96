package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/hackhub-api/internal/models"
)

// ErrStaleClaim indicates the submission is no longer in the ANALYZING state held by the caller.
var ErrStaleClaim = errors.New("submission is no longer claimed for analysis")

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	UserID      *string
	ChallengeID *string
	Status      *string
	Limit       int
	Offset      int
}

// AnalysisUpdate carries the fields written when an analysis succeeds.
type AnalysisUpdate struct {
	Score      float64
	SubScores  map[string]interface{}
	Rationale  string
	Detailed   map[string]interface{}
	AnalyzedAt time.Time
}

// AnalysisClaim describes which rows a caller may move to ANALYZING.
type AnalysisClaim struct {
	FromStatuses []string
	// RequireUnanalyzed rejects rows that already carry an analysis timestamp.
	RequireUnanalyzed bool
	// StaleBefore, when set, also admits ANALYZING rows last touched before it. Such rows
	// belong to a run that died without releasing its claim.
	StaleBefore *time.Time
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, int64, error)
	GetByID(ctx context.Context, id string) (models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	// ClaimForAnalysis moves the row to ANALYZING only if it matches claim. It reports whether
	// this caller won the claim.
	ClaimForAnalysis(ctx context.Context, id string, claim AnalysisClaim) (bool, error)
	// SaveAnalysis writes the result of a claimed analysis and returns the updated row.
	SaveAnalysis(ctx context.Context, id string, update AnalysisUpdate) (models.Submission, error)
	// MarkFailed releases a claimed analysis. Rows without a stored result become FAILED; rows
	// that still hold an earlier result return to ANALYZED so status and result agree.
	MarkFailed(ctx context.Context, id string) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Submission{})

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}

	if filter.ChallengeID != nil {
		query = query.Where("challenge_id = ?", *filter.ChallengeID)
	}

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var submissions []models.Submission
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&submissions).Error; err != nil {
		return nil, 0, err
	}

	return submissions, total, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id string) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&submission).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) ClaimForAnalysis(ctx context.Context, id string, claim AnalysisClaim) (bool, error) {
	if len(claim.FromStatuses) == 0 && claim.StaleBefore == nil {
		return false, nil
	}

	query := r.db.WithContext(ctx).Model(&models.Submission{}).Where("id = ?", id)
	switch {
	case claim.StaleBefore != nil && len(claim.FromStatuses) > 0:
		query = query.Where("(status IN ? OR (status = ? AND updated_at < ?))",
			claim.FromStatuses, models.SubmissionStatusAnalyzing, claim.StaleBefore.UTC())
	case claim.StaleBefore != nil:
		query = query.Where("status = ? AND updated_at < ?", models.SubmissionStatusAnalyzing, claim.StaleBefore.UTC())
	default:
		query = query.Where("status IN ?", claim.FromStatuses)
	}
	if claim.RequireUnanalyzed {
		query = query.Where("ai_analyzed_at IS NULL")
	}

	result := query.Updates(map[string]interface{}{
		"status":     models.SubmissionStatusAnalyzing,
		"updated_at": time.Now().UTC(),
	})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *submissionRepository) SaveAnalysis(ctx context.Context, id string, update AnalysisUpdate) (models.Submission, error) {
	var saved models.Submission
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rationale := update.Rationale
		result := tx.Model(&models.Submission{}).
			Where("id = ? AND status = ?", id, models.SubmissionStatusAnalyzing).
			Updates(map[string]interface{}{
				"status":               models.SubmissionStatusAnalyzed,
				"score_llm":            update.Score,
				"rubric_scores_json":   datatypes.JSONMap(update.SubScores),
				"rationale_md":         &rationale,
				"ai_detailed_analysis": datatypes.JSONMap(update.Detailed),
				"ai_analyzed_at":       update.AnalyzedAt,
				"updated_at":           time.Now().UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrStaleClaim
		}
		return tx.Where("id = ?", id).First(&saved).Error
	})
	if err != nil {
		return models.Submission{}, err
	}
	return saved, nil
}

func (r *submissionRepository) MarkFailed(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ? AND status = ?", id, models.SubmissionStatusAnalyzing).
		Updates(map[string]interface{}{
			"status": gorm.Expr("CASE WHEN ai_analyzed_at IS NULL THEN ? ELSE ? END",
				models.SubmissionStatusFailed, models.SubmissionStatusAnalyzed),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleClaim
	}
	return nil
}
