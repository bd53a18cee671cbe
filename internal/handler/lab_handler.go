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

// LabHandler exposes the per-lab proctoring and plagiarism endpoints.
type LabHandler struct {
	proctoring service.ProctoringService
	plagiarism service.PlagiarismService
	logger     zerolog.Logger
}

// NewLabHandler constructs the handler.
func NewLabHandler(proctoring service.ProctoringService, plagiarism service.PlagiarismService, logger zerolog.Logger) *LabHandler {
	return &LabHandler{
		proctoring: proctoring,
		plagiarism: plagiarism,
		logger:     logger.With().Str("component", "lab_handler").Logger(),
	}
}

// Register wires the lab-scoped endpoints into the router group. The group
// is expected to carry a :labID parameter.
func (h *LabHandler) Register(router fiber.Router) {
	router.Post("/violations", h.recordViolation)
	router.Get("/violations", h.listViolations)
	router.Get("/sessions", h.listSessions)
	router.Post("/sessions/end", h.endSession)
	router.Post("/plagiarism", h.analyzeLab)
}

// RegisterReview wires the violation review endpoint. Review is addressed by
// violation id, not lab, so it lives outside the lab group.
func (h *LabHandler) RegisterReview(router fiber.Router) {
	router.Post("/violations/:id/review", h.reviewViolation)
}

func (h *LabHandler) recordViolation(c *fiber.Ctx) error {
	labID := c.Params("labID")
	studentID := userIDFromContext(c)
	if studentID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var payload dto.ViolationEventRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	response, err := h.proctoring.RecordViolation(c.Context(), labID, studentID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "violation recorded", response)
}

func (h *LabHandler) listViolations(c *fiber.Ctx) error {
	if !requireStaff(c) {
		return nil
	}

	response, err := h.proctoring.ViolationsByLab(c.Context(), c.Params("labID"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "lab violations", response)
}

func (h *LabHandler) listSessions(c *fiber.Ctx) error {
	if !requireStaff(c) {
		return nil
	}

	response, err := h.proctoring.SessionsByLab(c.Context(), c.Params("labID"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "lab sessions", response)
}

func (h *LabHandler) endSession(c *fiber.Ctx) error {
	studentID := userIDFromContext(c)
	if studentID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	if err := h.proctoring.EndSession(c.Context(), c.Params("labID"), studentID); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "session ended", nil)
}

func (h *LabHandler) analyzeLab(c *fiber.Ctx) error {
	if !requireStaff(c) {
		return nil
	}

	response, err := h.plagiarism.AnalyzeLab(c.Context(), c.Params("labID"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "lab analyzed", response)
}

func (h *LabHandler) reviewViolation(c *fiber.Ctx) error {
	if !requireStaff(c) {
		return nil
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ViolationReviewRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	response, err := h.proctoring.ReviewViolation(c.Context(), id, userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "violation reviewed", response)
}

func (h *LabHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrUnknownViolationType):
		return utils.SendError(c, fiber.StatusBadRequest, "unknown violation type")
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrViolationNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("lab operation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
