package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/hackhub-api/internal/dto"
	"github.com/noah-isme/hackhub-api/internal/models"
	"github.com/noah-isme/hackhub-api/internal/observability"
	"github.com/noah-isme/hackhub-api/internal/repository"
	"github.com/noah-isme/hackhub-api/pkg/ai"
	"github.com/noah-isme/hackhub-api/pkg/evidence"
)

var (
	// ErrSubmissionNotFound indicates a submission could not be found.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrChallengeNotFound indicates the referenced challenge does not exist.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrAnalysisForbidden is returned when the caller neither owns the submission nor judges it.
	ErrAnalysisForbidden = errors.New("not allowed to analyze this submission")
	// ErrAnalysisInProgress is returned when another run holds the analysis claim.
	ErrAnalysisInProgress = errors.New("analysis already in progress")
	// ErrScoringFailed wraps the *ai.ScoringError of a failed run.
	ErrScoringFailed = errors.New("submission scoring failed")
	// ErrScorerUnavailable indicates no LLM provider is configured.
	ErrScorerUnavailable = errors.New("scorer unavailable")
)

// Outcome labels for analysis metrics.
const (
	outcomeAnalyzed   = "analyzed"
	outcomeCached     = "cached"
	outcomeInProgress = "in_progress"
	outcomeFailed     = "failed"
	outcomeError      = "error"
)

// AnalysisActor identifies the authenticated caller of an analysis operation.
type AnalysisActor struct {
	ID   string
	Role string
}

// Privileged reports whether the actor may see full results.
func (a AnalysisActor) Privileged() bool {
	return models.IsPrivilegedRole(a.Role)
}

// AnalyzeOptions tunes a single analysis run.
type AnalyzeOptions struct {
	// Force re-scores submissions that already carry a result.
	Force bool
	// Actor is written to the audit trail; the zero value records the system.
	Actor AnalysisActor
}

// AnalysisOutcome is the submission state after a run.
type AnalysisOutcome struct {
	Submission      models.Submission
	AlreadyAnalyzed bool
}

// EvidenceFetchers groups the external sources inspected before scoring. Nil fetchers are skipped.
type EvidenceFetchers struct {
	Repository evidence.RepositoryFetcher
	Deck       evidence.DeckFetcher
	Demo       evidence.DemoFetcher
}

// AnalysisConfig holds orchestration knobs.
type AnalysisConfig struct {
	BatchDelay     time.Duration
	StatusCacheTTL time.Duration
	// StaleClaimAfter is how long an ANALYZING row may go untouched before a forced run
	// takes it over. Zero disables takeover.
	StaleClaimAfter time.Duration
}

// AnalysisService runs and reports AI analysis of submissions.
type AnalysisService interface {
	Analyze(ctx context.Context, submissionID string, opts AnalyzeOptions) (AnalysisOutcome, error)
	AnalyzeBatch(ctx context.Context, payload dto.AnalysisBatchRequest, actor AnalysisActor) (dto.AnalysisBatchResponse, error)
	Status(ctx context.Context, submissionID string) (dto.AnalysisStatusResponse, error)
	Trigger(ctx context.Context, payload dto.AnalysisTriggerRequest, actor AnalysisActor) (dto.AnalysisTriggerResponse, error)
}

type analysisService struct {
	submissions repository.SubmissionRepository
	challenges  repository.ChallengeRepository
	scorer      ai.Scorer
	fetchers    EvidenceFetchers
	cache       *redis.Client
	activity    ActivityRecorder
	validator   *validator.Validate
	config      AnalysisConfig
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewAnalysisService wires the orchestrator. cache and activity may be nil.
func NewAnalysisService(submissions repository.SubmissionRepository, challenges repository.ChallengeRepository, scorer ai.Scorer, fetchers EvidenceFetchers, cache *redis.Client, activity ActivityRecorder, validate *validator.Validate, cfg AnalysisConfig, logger zerolog.Logger) AnalysisService {
	if cfg.StatusCacheTTL <= 0 {
		cfg.StatusCacheTTL = 30 * time.Second
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}

	return &analysisService{
		submissions: submissions,
		challenges:  challenges,
		scorer:      scorer,
		fetchers:    fetchers,
		cache:       cache,
		activity:    activity,
		validator:   validate,
		config:      cfg,
		logger:      logger.With().Str("component", "analysis_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/hackhub-api/internal/service/analysis"),
		now:         time.Now,
		sleep:       sleepContext,
	}
}

func (s *analysisService) Analyze(ctx context.Context, submissionID string, opts AnalyzeOptions) (AnalysisOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "analysis.run", trace.WithAttributes(
		attribute.String("analysis.submission_id", submissionID),
		attribute.Bool("analysis.force", opts.Force),
	))
	defer span.End()

	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_lookup_failed")
		return AnalysisOutcome{}, err
	}

	if submission.IsAnalyzed() && !opts.Force {
		span.SetAttributes(attribute.Bool("analysis.cached", true))
		observability.AnalysisRuns().WithLabelValues(outcomeCached).Inc()
		return AnalysisOutcome{Submission: submission, AlreadyAnalyzed: true}, nil
	}

	if s.scorer == nil {
		span.SetStatus(codes.Error, "scorer_unavailable")
		observability.AnalysisRuns().WithLabelValues(outcomeError).Inc()
		return AnalysisOutcome{}, ErrScorerUnavailable
	}

	claim := repository.AnalysisClaim{
		FromStatuses:      []string{models.SubmissionStatusPending, models.SubmissionStatusFailed},
		RequireUnanalyzed: !opts.Force,
	}
	if opts.Force {
		claim.FromStatuses = append(claim.FromStatuses, models.SubmissionStatusAnalyzed)
		if s.config.StaleClaimAfter > 0 {
			staleBefore := s.now().UTC().Add(-s.config.StaleClaimAfter)
			claim.StaleBefore = &staleBefore
		}
	}

	won, err := s.submissions.ClaimForAnalysis(ctx, submission.ID, claim)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim_failed")
		observability.AnalysisRuns().WithLabelValues(outcomeError).Inc()
		return AnalysisOutcome{}, fmt.Errorf("claim submission %s: %w", submission.ID, err)
	}

	if !won {
		current, err := s.loadSubmission(ctx, submission.ID)
		if err != nil {
			span.RecordError(err)
			return AnalysisOutcome{}, err
		}
		if current.IsAnalyzed() && !opts.Force {
			observability.AnalysisRuns().WithLabelValues(outcomeCached).Inc()
			return AnalysisOutcome{Submission: current, AlreadyAnalyzed: true}, nil
		}
		span.SetStatus(codes.Error, "analysis_in_progress")
		observability.AnalysisRuns().WithLabelValues(outcomeInProgress).Inc()
		return AnalysisOutcome{}, ErrAnalysisInProgress
	}

	// Once claimed, the row must always leave ANALYZING even if the caller goes away.
	persistCtx := context.WithoutCancel(ctx)
	start := s.now()
	logger := s.logger.With().Str("submission_id", submission.ID).Logger()
	if submission.Status == models.SubmissionStatusAnalyzing {
		logger.Warn().Time("claimed_at", submission.UpdatedAt).Msg("taking over stale analysis claim")
	}
	logger.Info().Bool("force", opts.Force).Msg("analysis started")

	evidenceText := s.gatherEvidence(ctx, submission)
	rubric := s.rubricFor(ctx, submission)

	result, err := s.scorer.Score(ctx, ai.ScoringInput{
		Title:    submission.Title,
		RepoURL:  submission.RepoLink(),
		DeckURL:  submission.DeckLink(),
		DemoURL:  submission.DemoLink(),
		Writeup:  submission.Writeup,
		Rubric:   rubric,
		Evidence: evidenceText,
	})
	if err != nil {
		return s.fail(persistCtx, span, logger, submission.ID, opts, start, err)
	}

	subScores := make(map[string]interface{}, len(result.SubScores))
	for name, value := range result.SubScores {
		subScores[name] = value
	}

	saved, err := s.submissions.SaveAnalysis(persistCtx, submission.ID, repository.AnalysisUpdate{
		Score:      result.Score,
		SubScores:  subScores,
		Rationale:  result.Rationale,
		Detailed:   result.Detailed,
		AnalyzedAt: s.now().UTC(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist_failed")
		observability.AnalysisRuns().WithLabelValues(outcomeError).Inc()
		if errors.Is(err, repository.ErrStaleClaim) {
			logger.Warn().Msg("analysis claim lost before result was stored")
			return AnalysisOutcome{}, ErrAnalysisInProgress
		}
		logger.Error().Err(err).Msg("failed to store analysis result")
		if markErr := s.submissions.MarkFailed(persistCtx, submission.ID); markErr != nil {
			logger.Warn().Err(markErr).Msg("failed to release analysis claim")
		}
		s.invalidateStatus(persistCtx, submission.ID)
		return AnalysisOutcome{}, fmt.Errorf("store analysis for %s: %w", submission.ID, err)
	}

	s.invalidateStatus(persistCtx, submission.ID)

	elapsed := s.now().Sub(start)
	observability.AnalysisRuns().WithLabelValues(outcomeAnalyzed).Inc()
	observability.AnalysisDuration().WithLabelValues(outcomeAnalyzed).Observe(elapsed.Seconds())
	span.SetAttributes(
		attribute.Float64("analysis.score", result.Score),
		attribute.String("analysis.provider", result.Provider),
	)
	logger.Info().
		Float64("score", result.Score).
		Str("provider", result.Provider).
		Str("model", result.Model).
		Dur("elapsed", elapsed).
		Msg("analysis completed")

	s.recordActivity(persistCtx, ActivityEntry{
		Actor:      opts.Actor,
		Action:     models.ActivityAnalysisCompleted,
		EntityType: activityEntitySubmission,
		EntityID:   submission.ID,
		Metadata: map[string]interface{}{
			"score":      result.Score,
			"provider":   result.Provider,
			"model":      result.Model,
			"force":      opts.Force,
			"elapsed_ms": elapsed.Milliseconds(),
		},
	})

	return AnalysisOutcome{Submission: saved}, nil
}

func (s *analysisService) fail(ctx context.Context, span trace.Span, logger zerolog.Logger, submissionID string, opts AnalyzeOptions, start time.Time, err error) (AnalysisOutcome, error) {
	metadata := map[string]interface{}{"force": opts.Force}
	event := logger.Error().Err(err)
	if scoringErr, ok := ai.AsScoringError(err); ok {
		event = event.Str("kind", string(scoringErr.Kind)).Str("provider", scoringErr.Provider)
		metadata["kind"] = string(scoringErr.Kind)
		metadata["provider"] = scoringErr.Provider
	}
	event.Msg("submission scoring failed")

	if markErr := s.submissions.MarkFailed(ctx, submissionID); markErr != nil {
		logger.Warn().Err(markErr).Msg("failed to mark submission as failed")
	}
	s.invalidateStatus(ctx, submissionID)

	observability.AnalysisRuns().WithLabelValues(outcomeFailed).Inc()
	observability.AnalysisDuration().WithLabelValues(outcomeFailed).Observe(s.now().Sub(start).Seconds())
	span.RecordError(err)
	span.SetStatus(codes.Error, "scoring_failed")

	s.recordActivity(ctx, ActivityEntry{
		Actor:      opts.Actor,
		Action:     models.ActivityAnalysisFailed,
		EntityType: activityEntitySubmission,
		EntityID:   submissionID,
		Metadata:   metadata,
	})

	return AnalysisOutcome{}, fmt.Errorf("%w: %w", ErrScoringFailed, err)
}

// recordActivity writes the audit entry; failures are logged and never affect the run.
func (s *analysisService) recordActivity(ctx context.Context, entry ActivityEntry) {
	if s.activity == nil {
		return
	}
	if _, err := s.activity.Record(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("action", entry.Action).Str("entity_id", entry.EntityID).Msg("failed to record analysis activity")
	}
}

// gatherEvidence fetches all configured sources concurrently and joins the blocks in
// repository, deck, demo order.
func (s *analysisService) gatherEvidence(ctx context.Context, submission models.Submission) string {
	var repoBlock, deckBlock, demoBlock string
	group, groupCtx := errgroup.WithContext(ctx)

	if repoURL := submission.RepoLink(); repoURL != "" {
		if s.fetchers.Repository != nil && s.fetchers.Repository.Supports(repoURL) {
			group.Go(func() error {
				repoBlock = evidence.FormatRepository(s.fetchers.Repository.Fetch(groupCtx, repoURL))
				return nil
			})
		} else {
			repoBlock = evidence.FormatUnavailable("repository", "repository host is not supported for automatic inspection: "+repoURL)
		}
	}

	if deckURL := submission.DeckLink(); deckURL != "" {
		if s.fetchers.Deck != nil {
			group.Go(func() error {
				deckBlock = evidence.FormatDeck(s.fetchers.Deck.Fetch(groupCtx, deckURL))
				return nil
			})
		} else {
			deckBlock = evidence.FormatUnavailable("pitch deck", "deck inspection is disabled")
		}
	}

	if demoURL := submission.DemoLink(); demoURL != "" {
		if s.fetchers.Demo != nil {
			group.Go(func() error {
				demoBlock = evidence.FormatDemo(s.fetchers.Demo.Fetch(groupCtx, demoURL))
				return nil
			})
		} else {
			demoBlock = evidence.FormatUnavailable("demo", "demo inspection is disabled")
		}
	}

	_ = group.Wait()

	blocks := make([]string, 0, 3)
	for _, block := range []string{repoBlock, deckBlock, demoBlock} {
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	return strings.Join(blocks, "\n")
}

func (s *analysisService) rubricFor(ctx context.Context, submission models.Submission) ai.Rubric {
	if s.challenges == nil || strings.TrimSpace(submission.ChallengeID) == "" {
		return ai.DefaultRubric()
	}

	challenge, err := s.challenges.GetByID(ctx, submission.ChallengeID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn().Err(err).Str("challenge_id", submission.ChallengeID).Msg("failed to load challenge rubric")
		}
		return ai.DefaultRubric()
	}

	rubric := rubricFromJSON(challenge.Rubric)
	if len(rubric) == 0 {
		return ai.DefaultRubric()
	}
	return rubric
}

// rubricFromJSON accepts {"dim": {"weight": n, "description": "..."}} as well as the
// shorthand forms {"dim": n} and {"dim": "description"}.
func rubricFromJSON(raw datatypes.JSONMap) ai.Rubric {
	rubric := ai.Rubric{}
	for name, value := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		switch v := value.(type) {
		case map[string]interface{}:
			criterion := ai.Criterion{}
			if weight, ok := toFloat(v["weight"]); ok {
				criterion.Weight = weight
			}
			if description, ok := v["description"].(string); ok {
				criterion.Description = strings.TrimSpace(description)
			}
			rubric[name] = criterion
		case string:
			rubric[name] = ai.Criterion{Description: strings.TrimSpace(v)}
		default:
			if weight, ok := toFloat(v); ok {
				rubric[name] = ai.Criterion{Weight: weight}
			}
		}
	}
	return rubric
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		parsed, err := v.Float64()
		return parsed, err == nil
	default:
		return 0, false
	}
}

func (s *analysisService) AnalyzeBatch(ctx context.Context, payload dto.AnalysisBatchRequest, actor AnalysisActor) (dto.AnalysisBatchResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AnalysisBatchResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "analysis.batch", trace.WithAttributes(
		attribute.Int("analysis.batch_size", len(payload.SubmissionIDs)),
	))
	defer span.End()

	response := dto.AnalysisBatchResponse{
		Total:   len(payload.SubmissionIDs),
		Results: make([]dto.AnalysisBatchItem, 0, len(payload.SubmissionIDs)),
	}

	for i, rawID := range payload.SubmissionIDs {
		id := strings.TrimSpace(rawID)
		item := dto.AnalysisBatchItem{SubmissionID: id}

		outcome, err := s.Analyze(ctx, id, AnalyzeOptions{Force: true, Actor: actor})
		if err != nil {
			item.Error = batchErrorLabel(err)
			response.Failed++
			s.logger.Warn().Err(err).Str("submission_id", id).Msg("batch analysis item failed")
		} else {
			item.Success = true
			item.Score = outcome.Submission.ScoreLLM
			response.Successful++
		}
		response.Results = append(response.Results, item)

		if i < len(payload.SubmissionIDs)-1 && s.config.BatchDelay > 0 {
			if err := s.sleep(ctx, s.config.BatchDelay); err != nil {
				s.logger.Warn().Err(err).Msg("batch delay interrupted")
			}
		}
	}

	span.SetAttributes(
		attribute.Int("analysis.batch_successful", response.Successful),
		attribute.Int("analysis.batch_failed", response.Failed),
	)
	s.logger.Info().
		Int("total", response.Total).
		Int("successful", response.Successful).
		Int("failed", response.Failed).
		Msg("batch analysis finished")

	s.recordActivity(context.WithoutCancel(ctx), ActivityEntry{
		Actor:      actor,
		Action:     models.ActivityAnalysisBatch,
		EntityType: "batch",
		Metadata: map[string]interface{}{
			"submission_ids": payload.SubmissionIDs,
			"total":          response.Total,
			"successful":     response.Successful,
			"failed":         response.Failed,
		},
	})

	return response, nil
}

func batchErrorLabel(err error) string {
	switch {
	case errors.Is(err, ErrSubmissionNotFound):
		return "not found"
	case errors.Is(err, ErrAnalysisInProgress):
		return "analysis in progress"
	case errors.Is(err, ErrScoringFailed), errors.Is(err, ErrScorerUnavailable):
		return "scoring failed"
	default:
		return "internal error"
	}
}

func (s *analysisService) Status(ctx context.Context, submissionID string) (dto.AnalysisStatusResponse, error) {
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return dto.AnalysisStatusResponse{}, ErrSubmissionNotFound
	}

	cacheKey := statusCacheKey(submissionID)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.AnalysisStatusResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				observability.StatusCacheLookups().WithLabelValues("hit").Inc()
				return response, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read analysis status cache")
		}
		observability.StatusCacheLookups().WithLabelValues("miss").Inc()
	}

	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return dto.AnalysisStatusResponse{}, err
	}

	response := dto.AnalysisStatusResponse{
		SubmissionID: submission.ID,
		Analyzed:     submission.IsAnalyzed(),
		AnalyzedAt:   submission.AIAnalyzedAt,
		Score:        submission.ScoreLLM,
	}

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.config.StatusCacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store analysis status cache")
			}
		}
	}

	return response, nil
}

func (s *analysisService) Trigger(ctx context.Context, payload dto.AnalysisTriggerRequest, actor AnalysisActor) (dto.AnalysisTriggerResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AnalysisTriggerResponse{}, err
	}

	submission, err := s.loadSubmission(ctx, payload.SubmissionID)
	if err != nil {
		return dto.AnalysisTriggerResponse{}, err
	}

	privileged := actor.Privileged()
	if !privileged && !submission.IsOwnedBy(actor.ID) {
		return dto.AnalysisTriggerResponse{}, ErrAnalysisForbidden
	}

	outcome, err := s.Analyze(ctx, submission.ID, AnalyzeOptions{Actor: actor})
	if err != nil {
		return dto.AnalysisTriggerResponse{}, err
	}

	analyzed := outcome.Submission
	response := dto.AnalysisTriggerResponse{
		Success:      true,
		SubmissionID: analyzed.ID,
		Analyzed:     analyzed.IsAnalyzed(),
	}

	if privileged {
		response.Analysis = analysisDetail(analyzed)
		return response, nil
	}

	if outcome.AlreadyAnalyzed {
		response.Message = "Submission has already been analyzed"
	} else {
		response.Message = "Submission analysis completed"
	}
	return response, nil
}

func analysisDetail(submission models.Submission) *dto.AnalysisDetail {
	detail := &dto.AnalysisDetail{
		SubScores:        map[string]interface{}{},
		DetailedAnalysis: map[string]interface{}(submission.AIDetailedAnalysis),
		AnalyzedAt:       submission.AIAnalyzedAt,
	}
	if submission.ScoreLLM != nil {
		detail.Score = *submission.ScoreLLM
	}
	if len(submission.RubricScores) > 0 {
		detail.SubScores = map[string]interface{}(submission.RubricScores)
	}
	if submission.RationaleMD != nil {
		detail.Rationale = *submission.RationaleMD
	}
	return detail
}

func (s *analysisService) loadSubmission(ctx context.Context, id string) (models.Submission, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Submission{}, ErrSubmissionNotFound
	}

	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}
	return submission, nil
}

func (s *analysisService) invalidateStatus(ctx context.Context, submissionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, statusCacheKey(submissionID)).Err(); err != nil {
		s.logger.Warn().Err(err).Str("submission_id", submissionID).Msg("failed to invalidate analysis status cache")
	}
}

func statusCacheKey(submissionID string) string {
	return "analysis:status:" + submissionID
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
