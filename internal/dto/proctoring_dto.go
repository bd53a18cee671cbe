package dto

import (
	"time"

	"github.com/noah-isme/codelab-api/internal/models"
)

// ViolationEventRequest is a violation reported by a proctored client.
type ViolationEventRequest struct {
	Type         string `json:"type" validate:"required"`
	Severity     string `json:"severity" validate:"omitempty,oneof=low medium high critical"`
	Details      string `json:"details" validate:"omitempty,max=2000"`
	SubmissionID *uint  `json:"submission_id"`
}

// ViolationReviewRequest carries a reviewer's verdict on a violation row.
type ViolationReviewRequest struct {
	Notes string `json:"notes" validate:"omitempty,max=4000"`
}

// ProctoringSessionResponse represents a session to observing staff.
type ProctoringSessionResponse struct {
	ID              uint       `json:"id"`
	LabID           string     `json:"lab_id"`
	StudentID       uint       `json:"student_id"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at"`
	ActiveSeconds   int64      `json:"active_seconds"`
	TabSwitches     int        `json:"tab_switches"`
	FullscreenExits int        `json:"fullscreen_exits"`
	WindowBlurs     int        `json:"window_blurs"`
	CopyPastes      int        `json:"copy_pastes"`
	DevtoolsOpens   int        `json:"devtools_opens"`
	OtherViolations int        `json:"other_violations"`
	TotalViolations int        `json:"total_violations"`
	Active          bool       `json:"active"`
	LastActivityAt  time.Time  `json:"last_activity_at"`
}

// ProctoringViolationResponse represents one audit-log row.
type ProctoringViolationResponse struct {
	ID           uint      `json:"id"`
	SessionID    uint      `json:"session_id"`
	Type         string    `json:"type"`
	Severity     string    `json:"severity"`
	OccurredAt   time.Time `json:"occurred_at"`
	Details      string    `json:"details,omitempty"`
	SubmissionID *uint     `json:"submission_id,omitempty"`
	Reviewed     bool      `json:"reviewed"`
	ReviewerID   *uint     `json:"reviewer_id,omitempty"`
	ReviewNotes  string    `json:"review_notes,omitempty"`
}

// NewProctoringSessionResponse converts a session model into a DTO.
func NewProctoringSessionResponse(session models.ProctoringSession) ProctoringSessionResponse {
	return ProctoringSessionResponse{
		ID:              session.ID,
		LabID:           session.LabID,
		StudentID:       session.StudentID,
		StartedAt:       session.StartedAt,
		EndedAt:         session.EndedAt,
		ActiveSeconds:   session.ActiveSeconds,
		TabSwitches:     session.TabSwitches,
		FullscreenExits: session.FullscreenExits,
		WindowBlurs:     session.WindowBlurs,
		CopyPastes:      session.CopyPastes,
		DevtoolsOpens:   session.DevtoolsOpens,
		OtherViolations: session.OtherViolations,
		TotalViolations: session.TotalViolations(),
		Active:          session.Active,
		LastActivityAt:  session.LastActivityAt,
	}
}

// NewProctoringViolationResponse converts a violation model into a DTO.
func NewProctoringViolationResponse(violation models.ProctoringViolation) ProctoringViolationResponse {
	return ProctoringViolationResponse{
		ID:           violation.ID,
		SessionID:    violation.SessionID,
		Type:         violation.Type,
		Severity:     violation.Severity,
		OccurredAt:   violation.OccurredAt,
		Details:      violation.Details,
		SubmissionID: violation.SubmissionID,
		Reviewed:     violation.Reviewed,
		ReviewerID:   violation.ReviewerID,
		ReviewNotes:  violation.ReviewNotes,
	}
}

// NewProctoringSessionResponseSlice converts a slice of sessions into DTOs.
func NewProctoringSessionResponseSlice(sessions []models.ProctoringSession) []ProctoringSessionResponse {
	out := make([]ProctoringSessionResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, NewProctoringSessionResponse(session))
	}
	return out
}

// NewProctoringViolationResponseSlice converts a slice of violations into DTOs.
func NewProctoringViolationResponseSlice(violations []models.ProctoringViolation) []ProctoringViolationResponse {
	out := make([]ProctoringViolationResponse, 0, len(violations))
	for _, violation := range violations {
		out = append(out, NewProctoringViolationResponse(violation))
	}
	return out
}
