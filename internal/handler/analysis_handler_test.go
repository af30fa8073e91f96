package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/hackhub-api/internal/config"
	"github.com/noah-isme/hackhub-api/internal/dto"
	"github.com/noah-isme/hackhub-api/internal/handler"
	"github.com/noah-isme/hackhub-api/internal/models"
	"github.com/noah-isme/hackhub-api/internal/repository"
	"github.com/noah-isme/hackhub-api/internal/router"
	"github.com/noah-isme/hackhub-api/internal/service"
	"github.com/noah-isme/hackhub-api/pkg/ai"
)

type fixedScorer struct {
	calls  atomic.Int32
	result ai.ScoringResult
	err    error
}

func (s *fixedScorer) Score(_ context.Context, _ ai.ScoringInput) (ai.ScoringResult, error) {
	s.calls.Add(1)
	if s.err != nil {
		return ai.ScoringResult{}, s.err
	}
	return s.result, nil
}

type analysisTestApp struct {
	app    *fiber.App
	db     *gorm.DB
	scorer *fixedScorer
}

// headerAuth stands in for the JWT middleware: X-Test-User and X-Test-Role populate the locals.
func headerAuth(c *fiber.Ctx) error {
	if user := c.Get("X-Test-User"); user != "" {
		c.Locals("user_id", user)
		role := c.Get("X-Test-Role")
		if role == "" {
			role = models.RoleParticipant
		}
		c.Locals("user_role", role)
	}
	return c.Next()
}

func setupAnalysisApp(t *testing.T) *analysisTestApp {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Challenge{}, &models.Submission{}, &models.ActivityLog{}))

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	scorer := &fixedScorer{result: ai.ScoringResult{
		Score:     82,
		SubScores: map[string]float64{"innovation": 80, "technical_execution": 85},
		Rationale: "Solid execution with a clear demo.",
		Detailed:  map[string]interface{}{"strengths": []interface{}{"tests"}},
		Provider:  "stub",
	}}

	submissionRepo := repository.NewSubmissionRepository(db)
	challengeRepo := repository.NewChallengeRepository(db)

	activityService := service.NewActivityService(repository.NewActivityLogRepository(db), validate, logger)
	analysisService := service.NewAnalysisService(submissionRepo, challengeRepo, scorer, service.EvidenceFetchers{}, nil, activityService, validate, service.AnalysisConfig{}, logger)
	submissionService := service.NewSubmissionService(submissionRepo, challengeRepo, nil, validate, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test"}, router.Dependencies{
		AnalysisHandler:   handler.NewAnalysisHandler(analysisService, nil, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, logger),
		ActivityHandler:   handler.NewActivityHandler(activityService, logger),
		JWTMiddleware:     headerAuth,
	})

	return &analysisTestApp{app: app, db: db, scorer: scorer}
}

func (a *analysisTestApp) seedSubmission(t *testing.T, id, owner string) models.Submission {
	t.Helper()

	challenge := models.Challenge{Title: "Climate"}
	require.NoError(t, a.db.Create(&challenge).Error)

	repo := "https://gitlab.example.com/team/project"
	submission := models.Submission{
		ID:          id,
		UserID:      owner,
		ChallengeID: challenge.ID,
		Title:       "Carbon tracker",
		RepoURL:     &repo,
		Writeup:     "We track emissions per commute.",
	}
	require.NoError(t, a.db.Create(&submission).Error)
	return submission
}

func (a *analysisTestApp) do(t *testing.T, method, path, user, role string, body interface{}) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
		req.Header.Set("X-Test-Role", role)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func validateContract(t *testing.T, schemaFile string, raw []byte) {
	t.Helper()

	schemaPath, err := filepath.Abs(filepath.Join("testdata", "contracts", schemaFile))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile("file://" + filepath.ToSlash(schemaPath))
	require.NoError(t, err)

	var payload interface{}
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.NoError(t, schema.Validate(payload))
}

func errorCode(t *testing.T, raw []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &envelope))
	return envelope.Error.Code
}

func TestAnalysisTriggerRequiresAuthentication(t *testing.T) {
	env := setupAnalysisApp(t)
	env.seedSubmission(t, "sub-1", "user-1")

	resp, raw := env.do(t, http.MethodPost, "/api/v1/analysis", "", "", dto.AnalysisTriggerRequest{SubmissionID: "sub-1"})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "UNAUTHORIZED", errorCode(t, raw))
	validateContract(t, "error.schema.json", raw)
	require.Zero(t, env.scorer.calls.Load())
}

func TestAnalysisTriggerRejectsMissingSubmissionID(t *testing.T) {
	env := setupAnalysisApp(t)

	resp, raw := env.do(t, http.MethodPost, "/api/v1/analysis", "user-1", models.RoleParticipant, map[string]string{})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "VALIDATION_ERROR", errorCode(t, raw))
	validateContract(t, "error.schema.json", raw)
}

func TestAnalysisTriggerUnknownSubmission(t *testing.T) {
	env := setupAnalysisApp(t)

	resp, raw := env.do(t, http.MethodPost, "/api/v1/analysis", "judge-1", models.RoleJudge, dto.AnalysisTriggerRequest{SubmissionID: "missing"})
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.Equal(t, "NOT_FOUND", errorCode(t, raw))
	require.Zero(t, env.scorer.calls.Load())
}

func TestAnalysisTriggerForbiddenForOtherParticipants(t *testing.T) {
	env := setupAnalysisApp(t)
	env.seedSubmission(t, "sub-1", "user-1")

	resp, raw := env.do(t, http.MethodPost, "/api/v1/analysis", "user-2", models.RoleParticipant, dto.AnalysisTriggerRequest{SubmissionID: "sub-1"})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.Equal(t, "FORBIDDEN", errorCode(t, raw))
	require.Zero(t, env.scorer.calls.Load())
}

func TestAnalysisTriggerOwnerThenJudge(t *testing.T) {
	env := setupAnalysisApp(t)
	env.seedSubmission(t, "sub-1", "user-1")

	resp, raw := env.do(t, http.MethodPost, "/api/v1/analysis", "user-1", models.RoleParticipant, dto.AnalysisTriggerRequest{SubmissionID: "sub-1"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	validateContract(t, "analysis_trigger_owner.schema.json", raw)

	var owner dto.AnalysisTriggerResponse
	require.NoError(t, json.Unmarshal(raw, &owner))
	require.True(t, owner.Analyzed)
	require.Equal(t, "Submission analysis completed", owner.Message)
	require.Nil(t, owner.Analysis)

	resp, raw = env.do(t, http.MethodPost, "/api/v1/analysis", "judge-1", models.RoleJudge, dto.AnalysisTriggerRequest{SubmissionID: "sub-1"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	validateContract(t, "analysis_trigger_privileged.schema.json", raw)

	var judge dto.AnalysisTriggerResponse
	require.NoError(t, json.Unmarshal(raw, &judge))
	require.NotNil(t, judge.Analysis)
	require.InDelta(t, 82, judge.Analysis.Score, 0.001)
	require.Equal(t, "Solid execution with a clear demo.", judge.Analysis.Rationale)
	require.Contains(t, judge.Analysis.SubScores, "innovation")

	// the second call returns the stored result without scoring again
	require.EqualValues(t, 1, env.scorer.calls.Load())

	resp, raw = env.do(t, http.MethodPost, "/api/v1/analysis", "user-1", models.RoleParticipant, dto.AnalysisTriggerRequest{SubmissionID: "sub-1"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &owner))
	require.Equal(t, "Submission has already been analyzed", owner.Message)
	require.EqualValues(t, 1, env.scorer.calls.Load())
}

func TestAnalysisStatusHidesRationale(t *testing.T) {
	env := setupAnalysisApp(t)
	env.seedSubmission(t, "sub-1", "user-1")

	resp, raw := env.do(t, http.MethodGet, "/api/v1/analysis?submissionId=sub-1", "user-1", models.RoleParticipant, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	validateContract(t, "analysis_status.schema.json", raw)

	var status dto.AnalysisStatusResponse
	require.NoError(t, json.Unmarshal(raw, &status))
	require.False(t, status.Analyzed)
	require.Nil(t, status.Score)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/analysis", "judge-1", models.RoleJudge, dto.AnalysisTriggerRequest{SubmissionID: "sub-1"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, raw = env.do(t, http.MethodGet, "/api/v1/analysis?submissionId=sub-1", "user-1", models.RoleParticipant, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	validateContract(t, "analysis_status.schema.json", raw)
	require.NoError(t, json.Unmarshal(raw, &status))
	require.True(t, status.Analyzed)
	require.NotNil(t, status.Score)
	require.NotContains(t, string(raw), "rationale")
}

func TestAnalysisStatusRequiresSubmissionID(t *testing.T) {
	env := setupAnalysisApp(t)

	resp, raw := env.do(t, http.MethodGet, "/api/v1/analysis", "user-1", models.RoleParticipant, nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "VALIDATION_ERROR", errorCode(t, raw))
}

func TestAnalysisTriggerReportsScoringFailureGenerically(t *testing.T) {
	env := setupAnalysisApp(t)
	env.seedSubmission(t, "sub-1", "user-1")
	env.scorer.err = &ai.ScoringError{Kind: ai.ErrorKindUnavailable, Provider: "stub", Err: errors.New("upstream secret detail")}

	resp, raw := env.do(t, http.MethodPost, "/api/v1/analysis", "judge-1", models.RoleJudge, dto.AnalysisTriggerRequest{SubmissionID: "sub-1"})
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "ANALYSIS_FAILED", errorCode(t, raw))
	require.NotContains(t, string(raw), "upstream secret detail")
	validateContract(t, "error.schema.json", raw)

	var stored models.Submission
	require.NoError(t, env.db.First(&stored, "id = ?", "sub-1").Error)
	require.Equal(t, models.SubmissionStatusFailed, stored.Status)
	require.Nil(t, stored.AIAnalyzedAt)

	env.scorer.err = nil
	resp, _ = env.do(t, http.MethodPost, "/api/v1/analysis", "judge-1", models.RoleJudge, dto.AnalysisTriggerRequest{SubmissionID: "sub-1"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAnalysisTriggerConflictsWithRunningAnalysis(t *testing.T) {
	env := setupAnalysisApp(t)
	env.seedSubmission(t, "sub-1", "user-1")
	require.NoError(t, env.db.Model(&models.Submission{}).Where("id = ?", "sub-1").Update("status", models.SubmissionStatusAnalyzing).Error)

	resp, raw := env.do(t, http.MethodPost, "/api/v1/analysis", "judge-1", models.RoleJudge, dto.AnalysisTriggerRequest{SubmissionID: "sub-1"})
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Equal(t, "ANALYSIS_IN_PROGRESS", errorCode(t, raw))
	require.Zero(t, env.scorer.calls.Load())
}

func TestAnalysisBatchRequiresJudge(t *testing.T) {
	env := setupAnalysisApp(t)
	env.seedSubmission(t, "sub-1", "user-1")

	resp, raw := env.do(t, http.MethodPost, "/api/v1/analysis/batch", "user-1", models.RoleParticipant, dto.AnalysisBatchRequest{SubmissionIDs: []string{"sub-1"}})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	validateContract(t, "error.schema.json", raw)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/analysis/batch", "", "", dto.AnalysisBatchRequest{SubmissionIDs: []string{"sub-1"}})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.Zero(t, env.scorer.calls.Load())
}

func TestAnalysisBatchReportsPerItemOutcome(t *testing.T) {
	env := setupAnalysisApp(t)
	env.seedSubmission(t, "sub-1", "user-1")
	env.seedSubmission(t, "sub-2", "user-2")

	resp, raw := env.do(t, http.MethodPost, "/api/v1/analysis/batch", "admin-1", models.RoleAdmin, dto.AnalysisBatchRequest{SubmissionIDs: []string{"sub-1", "missing", "sub-2"}})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var batch dto.AnalysisBatchResponse
	require.NoError(t, json.Unmarshal(raw, &batch))
	require.Equal(t, 3, batch.Total)
	require.Equal(t, 2, batch.Successful)
	require.Equal(t, 1, batch.Failed)
	require.Len(t, batch.Results, 3)
	require.Equal(t, "missing", batch.Results[1].SubmissionID)
	require.False(t, batch.Results[1].Success)
	require.NotEmpty(t, batch.Results[1].Error)
	require.EqualValues(t, 2, env.scorer.calls.Load())

	resp, raw = env.do(t, http.MethodPost, "/api/v1/analysis/batch", "admin-1", models.RoleAdmin, dto.AnalysisBatchRequest{})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "VALIDATION_ERROR", errorCode(t, raw))
}

func TestAnalysisActivityTrail(t *testing.T) {
	env := setupAnalysisApp(t)
	env.seedSubmission(t, "sub-1", "user-1")

	resp, _ := env.do(t, http.MethodPost, "/api/v1/analysis", "user-1", models.RoleParticipant, dto.AnalysisTriggerRequest{SubmissionID: "sub-1"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/analysis/activity?submissionId=sub-1", "user-1", models.RoleParticipant, nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, raw := env.do(t, http.MethodGet, "/api/v1/analysis/activity?submissionId=sub-1", "judge-1", models.RoleJudge, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var envelope struct {
		Data []dto.ActivityResponse `json:"data"`
		Meta dto.PaginationMeta     `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(raw, &envelope))
	require.Len(t, envelope.Data, 1)
	require.Equal(t, models.ActivityAnalysisCompleted, envelope.Data[0].Action)
	require.Equal(t, "user-1", envelope.Data[0].ActorID)
	require.EqualValues(t, 1, envelope.Meta.TotalItems)
}
