package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codelab-api/internal/dto"
	"github.com/noah-isme/codelab-api/internal/service"
	"github.com/noah-isme/codelab-api/internal/utils"
)

// SubmissionHandler exposes the judge submission endpoints.
type SubmissionHandler struct {
	evaluations service.EvaluationService
	plagiarism  service.PlagiarismService
	logger      zerolog.Logger
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(evaluations service.EvaluationService, plagiarism service.PlagiarismService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		evaluations: evaluations,
		plagiarism:  plagiarism,
		logger:      logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register wires the judge endpoints into the router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("/run", h.sampleRun)

	submissions := router.Group("/submissions")
	submissions.Post("", h.create)
	submissions.Get("/:id", h.get)
	submissions.Post("/:id/evaluate", h.evaluate)
	submissions.Post("/:id/plagiarism", h.analyze)
	submissions.Get("/:id/plagiarism", h.report)
}

func (h *SubmissionHandler) create(c *fiber.Ctx) error {
	var payload dto.SubmissionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	studentID := userIDFromContext(c)
	if studentID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	response, err := h.evaluations.Submit(c.Context(), studentID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission graded", response)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.evaluations.Get(c.Context(), id, userIDFromContext(c), userRoleFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission retrieved", response)
}

func (h *SubmissionHandler) evaluate(c *fiber.Ctx) error {
	if !requireStaff(c) {
		return nil
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.evaluations.Evaluate(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission re-evaluated", response)
}

func (h *SubmissionHandler) sampleRun(c *fiber.Ctx) error {
	var payload dto.SampleRunRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if userIDFromContext(c) == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	response, err := h.evaluations.SampleRun(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "run completed", response)
}

func (h *SubmissionHandler) analyze(c *fiber.Ctx) error {
	if !requireStaff(c) {
		return nil
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.plagiarism.Analyze(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission analyzed", response)
}

func (h *SubmissionHandler) report(c *fiber.Ctx) error {
	if !requireStaff(c) {
		return nil
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.plagiarism.Report(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "plagiarism report", response)
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrUnsupportedLanguage):
		return utils.SendError(c, fiber.StatusBadRequest, "language not supported")
	case errors.Is(err, service.ErrProblemNotFound), errors.Is(err, service.ErrSubmissionNotFound), errors.Is(err, service.ErrReportNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrSubmissionForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "forbidden")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("submission operation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
