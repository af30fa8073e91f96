package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/hackhub-api/internal/dto"
	"github.com/noah-isme/hackhub-api/internal/models"
	"github.com/noah-isme/hackhub-api/internal/repository"
)

// ErrSubmissionContentEmpty indicates the write-up or title contained nothing but markup.
var ErrSubmissionContentEmpty = errors.New("submission content empty after sanitization")

// ErrSubmissionForbidden indicates the caller may not view the submission.
var ErrSubmissionForbidden = errors.New("not allowed to view this submission")

// SubmissionService handles challenge entries.
type SubmissionService interface {
	Create(ctx context.Context, payload dto.SubmissionCreateRequest, actor AnalysisActor) (dto.SubmissionResponse, error)
	Get(ctx context.Context, id string, actor AnalysisActor) (dto.SubmissionResponse, error)
	List(ctx context.Context, filter dto.SubmissionFilter, actor AnalysisActor) (dto.SubmissionList, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	challenges  repository.ChallengeRepository
	dispatcher  AnalysisDispatcher
	validator   *validator.Validate
	writeup     *bluemonday.Policy
	plain       *bluemonday.Policy
	logger      zerolog.Logger
}

// NewSubmissionService constructs a SubmissionService. dispatcher may be nil, in which case
// analysis only runs when triggered explicitly.
func NewSubmissionService(submissions repository.SubmissionRepository, challenges repository.ChallengeRepository, dispatcher AnalysisDispatcher, validate *validator.Validate, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		submissions: submissions,
		challenges:  challenges,
		dispatcher:  dispatcher,
		validator:   validate,
		writeup:     bluemonday.UGCPolicy(),
		plain:       bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "submission_service").Logger(),
	}
}

func (s *submissionService) Create(ctx context.Context, payload dto.SubmissionCreateRequest, actor AnalysisActor) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	ownerID := strings.TrimSpace(actor.ID)
	if ownerID == "" {
		return dto.SubmissionResponse{}, ErrSubmissionForbidden
	}

	title := strings.TrimSpace(s.plain.Sanitize(payload.Title))
	writeup := strings.TrimSpace(s.writeup.Sanitize(payload.Writeup))
	if title == "" || writeup == "" {
		return dto.SubmissionResponse{}, ErrSubmissionContentEmpty
	}

	challengeID := strings.TrimSpace(payload.ChallengeID)
	if _, err := s.challenges.GetByID(ctx, challengeID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrChallengeNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	submission := models.Submission{
		UserID:      ownerID,
		ChallengeID: challengeID,
		Title:       title,
		RepoURL:     optionalURL(payload.RepoURL),
		DeckURL:     optionalURL(payload.DeckURL),
		DemoURL:     optionalURL(payload.DemoURL),
		Writeup:     writeup,
		Status:      models.SubmissionStatusPending,
	}

	if err := s.submissions.Create(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	s.logger.Info().Str("submission_id", submission.ID).Str("challenge_id", challengeID).Msg("submission created")

	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, submission.ID); err != nil {
			s.logger.Warn().Err(err).Str("submission_id", submission.ID).Msg("failed to dispatch analysis")
		}
	}

	return dto.NewSubmissionResponse(submission, actor.Privileged())
}

func (s *submissionService) Get(ctx context.Context, id string, actor AnalysisActor) (dto.SubmissionResponse, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return dto.SubmissionResponse{}, ErrSubmissionNotFound
	}

	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	privileged := actor.Privileged()
	if !privileged && !submission.IsOwnedBy(actor.ID) {
		return dto.SubmissionResponse{}, ErrSubmissionForbidden
	}

	return dto.NewSubmissionResponse(submission, privileged)
}

func (s *submissionService) List(ctx context.Context, filter dto.SubmissionFilter, actor AnalysisActor) (dto.SubmissionList, error) {
	if err := s.validator.Struct(filter); err != nil {
		return dto.SubmissionList{}, err
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	repoFilter := repository.SubmissionFilter{
		ChallengeID: filter.ChallengeID,
		Status:      filter.Status,
		Limit:       pageSize,
		Offset:      (page - 1) * pageSize,
	}

	privileged := actor.Privileged()
	if !privileged {
		ownerID := strings.TrimSpace(actor.ID)
		if ownerID == "" {
			return dto.SubmissionList{}, ErrSubmissionForbidden
		}
		repoFilter.UserID = &ownerID
	}

	items, total, err := s.submissions.List(ctx, repoFilter)
	if err != nil {
		return dto.SubmissionList{}, err
	}

	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}

	responses, err := dto.NewSubmissionResponseSlice(items, privileged)
	if err != nil {
		return dto.SubmissionList{}, err
	}

	return dto.SubmissionList{
		Items: responses,
		Pagination: dto.PaginationMeta{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: total,
			TotalPages: totalPages,
		},
	}, nil
}

func optionalURL(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
