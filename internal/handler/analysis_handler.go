package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/hackhub-api/internal/dto"
	"github.com/noah-isme/hackhub-api/internal/middleware"
	"github.com/noah-isme/hackhub-api/internal/service"
	"github.com/noah-isme/hackhub-api/internal/utils"
)

// AnalysisHandler exposes the AI analysis endpoints.
type AnalysisHandler struct {
	service      service.AnalysisService
	triggerGuard fiber.Handler
	logger       zerolog.Logger
}

// NewAnalysisHandler constructs the handler. triggerGuard (usually a rate limiter) runs in front
// of the trigger endpoint only and may be nil.
func NewAnalysisHandler(service service.AnalysisService, triggerGuard fiber.Handler, logger zerolog.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		service:      service,
		triggerGuard: triggerGuard,
		logger:       logger.With().Str("component", "analysis_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *AnalysisHandler) Register(router fiber.Router) {
	authenticated := middleware.AuthOptions{Role: middleware.AuthRoleAny}

	trigger := middleware.WithAuth(h.trigger, authenticated)
	if h.triggerGuard != nil {
		router.Post("", h.triggerGuard, trigger)
	} else {
		router.Post("", trigger)
	}
	router.Get("", middleware.WithAuth(h.status, authenticated))
	router.Post("/batch", middleware.WithAuth(h.batch, middleware.AuthOptions{Role: middleware.AuthRoleJudge}))
}

func (h *AnalysisHandler) trigger(c *fiber.Ctx) error {
	actor := analysisActorFromContext(c)

	var payload dto.AnalysisTriggerRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	payload.SubmissionID = strings.TrimSpace(payload.SubmissionID)

	response, err := h.service.Trigger(c.UserContext(), payload, actor)
	if err != nil {
		return h.handleError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

func (h *AnalysisHandler) status(c *fiber.Ctx) error {
	submissionID := strings.TrimSpace(c.Query("submissionId"))
	if submissionID == "" {
		return utils.Fail(c, fiber.StatusBadRequest, utils.CodeValidation, "submissionId is required", nil)
	}

	response, err := h.service.Status(c.UserContext(), submissionID)
	if err != nil {
		return h.handleError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

func (h *AnalysisHandler) batch(c *fiber.Ctx) error {
	actor := analysisActorFromContext(c)

	var payload dto.AnalysisBatchRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	response, err := h.service.AnalyzeBatch(c.UserContext(), payload, actor)
	if err != nil {
		return h.handleError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// handleError maps service errors to the error envelope. Upstream error text is logged, never returned.
func (h *AnalysisHandler) handleError(c *fiber.Ctx, err error) error {
	if details, ok := validationDetails(err); ok {
		return utils.Fail(c, fiber.StatusBadRequest, utils.CodeValidation, "invalid request", details)
	}

	switch {
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrAnalysisForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "you are not allowed to analyze this submission")
	case errors.Is(err, service.ErrAnalysisInProgress):
		return utils.Fail(c, fiber.StatusConflict, utils.CodeAnalysisInProgress, "analysis is already in progress", nil)
	case errors.Is(err, service.ErrScoringFailed), errors.Is(err, service.ErrScorerUnavailable):
		requestLogger(h.logger, c).Error().Err(err).Msg("submission analysis failed")
		return utils.Fail(c, fiber.StatusInternalServerError, utils.CodeAnalysisFailed, "analysis failed, please try again later", nil)
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("analysis operation failed")
		return utils.Fail(c, fiber.StatusInternalServerError, utils.CodeInternal, "internal server error", nil)
	}
}
