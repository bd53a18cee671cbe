package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/codelab-api/internal/dto"
	"github.com/noah-isme/codelab-api/internal/models"
	"github.com/noah-isme/codelab-api/internal/observability"
	"github.com/noah-isme/codelab-api/internal/repository"
)

// ProctoringService tracks per-(lab, student) sessions and their violation log.
type ProctoringService interface {
	TouchSession(ctx context.Context, labID string, studentID uint) (models.ProctoringSession, error)
	RecordViolation(ctx context.Context, labID string, studentID uint, event dto.ViolationEventRequest) (dto.ProctoringViolationResponse, error)
	EndSession(ctx context.Context, labID string, studentID uint) error
	SessionsByLab(ctx context.Context, labID string) ([]dto.ProctoringSessionResponse, error)
	ViolationsByLab(ctx context.Context, labID string) ([]dto.ProctoringViolationResponse, error)
	ReviewViolation(ctx context.Context, violationID uint, reviewerID uint, payload dto.ViolationReviewRequest) (dto.ProctoringViolationResponse, error)
}

// ErrSessionNotFound indicates no active session exists for the pair.
var ErrSessionNotFound = errors.New("proctoring session not found")

// ErrViolationNotFound indicates the violation row cannot be located.
var ErrViolationNotFound = errors.New("violation not found")

// ErrUnknownViolationType indicates the reported type is outside the closed set.
var ErrUnknownViolationType = errors.New("unknown violation type")

// idleCutoff bounds how much wall time between two touches is counted as
// active; longer gaps are treated as the student being away.
const idleCutoff = 2 * time.Minute

type proctoringService struct {
	repo      repository.ProctoringRepository
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewProctoringService constructs the session tracker.
func NewProctoringService(repo repository.ProctoringRepository, validate *validator.Validate, logger zerolog.Logger) ProctoringService {
	return &proctoringService{
		repo:      repo,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "proctoring_service").Logger(),
	}
}

// TouchSession creates or resumes the active session for (lab, student) and
// rolls its activity clock forward. Reconnecting never resets counters.
func (s *proctoringService) TouchSession(ctx context.Context, labID string, studentID uint) (models.ProctoringSession, error) {
	now := time.Now().UTC()

	session, err := s.repo.GetActiveSession(ctx, labID, studentID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ProctoringSession{}, err
		}

		session = models.ProctoringSession{
			LabID:          labID,
			StudentID:      studentID,
			StartedAt:      now,
			Active:         true,
			LastActivityAt: now,
		}
		if err := s.repo.CreateSession(ctx, &session); err != nil {
			return models.ProctoringSession{}, err
		}
		s.logger.Info().Str("lab_id", labID).Uint("student_id", studentID).Msg("proctoring session started")
		return session, nil
	}

	if gap := now.Sub(session.LastActivityAt); gap > 0 && gap <= idleCutoff {
		session.ActiveSeconds += int64(gap.Seconds())
	}
	session.LastActivityAt = now
	if err := s.repo.UpdateSession(ctx, &session); err != nil {
		return models.ProctoringSession{}, err
	}

	return session, nil
}

// RecordViolation appends one audit row with the type's default severity
// (unless the event overrides it) and bumps the matching session counter.
func (s *proctoringService) RecordViolation(ctx context.Context, labID string, studentID uint, event dto.ViolationEventRequest) (dto.ProctoringViolationResponse, error) {
	if err := s.validator.Struct(event); err != nil {
		return dto.ProctoringViolationResponse{}, err
	}

	violationType := strings.ToLower(strings.TrimSpace(event.Type))
	if !models.KnownViolationType(violationType) {
		return dto.ProctoringViolationResponse{}, ErrUnknownViolationType
	}

	session, err := s.TouchSession(ctx, labID, studentID)
	if err != nil {
		return dto.ProctoringViolationResponse{}, err
	}

	severity := event.Severity
	if severity == "" {
		severity = models.DefaultSeverity(violationType)
	}

	violation := models.ProctoringViolation{
		SessionID:    session.ID,
		Type:         violationType,
		Severity:     severity,
		OccurredAt:   time.Now().UTC(),
		Details:      strings.TrimSpace(s.sanitizer.Sanitize(event.Details)),
		SubmissionID: event.SubmissionID,
	}

	counter := session.CounterField(violationType)
	*counter = *counter + 1
	if err := s.repo.RecordViolation(ctx, &session, &violation); err != nil {
		return dto.ProctoringViolationResponse{}, err
	}

	observability.ViolationsTotal().WithLabelValues(violationType, severity).Inc()
	s.logger.Info().
		Str("lab_id", labID).
		Uint("student_id", studentID).
		Str("type", violationType).
		Str("severity", severity).
		Msg("violation recorded")

	return dto.NewProctoringViolationResponse(violation), nil
}

// EndSession closes the active session. Disconnects alone never end a session;
// this is driven by an explicit end signal or the lab-window scheduler.
func (s *proctoringService) EndSession(ctx context.Context, labID string, studentID uint) error {
	session, err := s.repo.GetActiveSession(ctx, labID, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		return err
	}

	now := time.Now().UTC()
	if gap := now.Sub(session.LastActivityAt); gap > 0 && gap <= idleCutoff {
		session.ActiveSeconds += int64(gap.Seconds())
	}
	session.LastActivityAt = now
	if err := s.repo.UpdateSession(ctx, &session); err != nil {
		return err
	}

	if err := s.repo.EndSession(ctx, session.ID, now); err != nil {
		return err
	}

	s.logger.Info().Str("lab_id", labID).Uint("student_id", studentID).Msg("proctoring session ended")
	return nil
}

func (s *proctoringService) SessionsByLab(ctx context.Context, labID string) ([]dto.ProctoringSessionResponse, error) {
	sessions, err := s.repo.ListSessionsByLab(ctx, labID)
	if err != nil {
		return nil, err
	}
	return dto.NewProctoringSessionResponseSlice(sessions), nil
}

func (s *proctoringService) ViolationsByLab(ctx context.Context, labID string) ([]dto.ProctoringViolationResponse, error) {
	violations, err := s.repo.ListViolationsByLab(ctx, labID)
	if err != nil {
		return nil, err
	}
	return dto.NewProctoringViolationResponseSlice(violations), nil
}

// ReviewViolation marks the row reviewed with the reviewer's notes. The only
// post-creation mutation a violation ever receives.
func (s *proctoringService) ReviewViolation(ctx context.Context, violationID uint, reviewerID uint, payload dto.ViolationReviewRequest) (dto.ProctoringViolationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ProctoringViolationResponse{}, err
	}

	violation, err := s.repo.GetViolation(ctx, violationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ProctoringViolationResponse{}, ErrViolationNotFound
		}
		return dto.ProctoringViolationResponse{}, err
	}

	violation.Reviewed = true
	violation.ReviewerID = &reviewerID
	violation.ReviewNotes = strings.TrimSpace(s.sanitizer.Sanitize(payload.Notes))
	if err := s.repo.SaveViolation(ctx, &violation); err != nil {
		return dto.ProctoringViolationResponse{}, err
	}

	return dto.NewProctoringViolationResponse(violation), nil
}
