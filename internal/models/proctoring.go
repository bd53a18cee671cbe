package models

import (
	"time"

	"gorm.io/datatypes"
)

// ViolationType enumerates the anti-integrity events a proctored client can report.
const (
	ViolationTabSwitch      = "tab_switch"
	ViolationFullscreenExit = "fullscreen_exit"
	ViolationWindowBlur     = "window_blur"
	ViolationCopyPaste      = "copy_paste"
	ViolationDevtoolsOpen   = "devtools_open"
	ViolationOther          = "other"
)

// Violation severities, lowest to highest.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

var defaultViolationSeverity = map[string]string{
	ViolationTabSwitch:      SeverityMedium,
	ViolationFullscreenExit: SeverityMedium,
	ViolationWindowBlur:     SeverityLow,
	ViolationCopyPaste:      SeverityHigh,
	ViolationDevtoolsOpen:   SeverityCritical,
	ViolationOther:          SeverityLow,
}

// KnownViolationType reports whether the given type is part of the closed set.
func KnownViolationType(violationType string) bool {
	_, ok := defaultViolationSeverity[violationType]
	return ok
}

// DefaultSeverity returns the fixed default severity for a violation type.
func DefaultSeverity(violationType string) string {
	if severity, ok := defaultViolationSeverity[violationType]; ok {
		return severity
	}
	return SeverityLow
}

// ProctoringSession tracks one student's activity window within one lab attempt.
// One active session per (lab, student); reconnects resume it rather than reset it.
type ProctoringSession struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	LabID           string            `gorm:"size:64;not null;index:idx_lab_student" json:"lab_id"`
	StudentID       uint              `gorm:"not null;index:idx_lab_student" json:"student_id"`
	StartedAt       time.Time         `json:"started_at"`
	EndedAt         *time.Time        `json:"ended_at"`
	ActiveSeconds   int64             `gorm:"default:0" json:"active_seconds"`
	TabSwitches     int               `gorm:"default:0" json:"tab_switches"`
	FullscreenExits int               `gorm:"default:0" json:"fullscreen_exits"`
	WindowBlurs     int               `gorm:"default:0" json:"window_blurs"`
	CopyPastes      int               `gorm:"default:0" json:"copy_pastes"`
	DevtoolsOpens   int               `gorm:"default:0" json:"devtools_opens"`
	OtherViolations int               `gorm:"default:0" json:"other_violations"`
	Active          bool              `gorm:"default:true;index" json:"active"`
	LastActivityAt  time.Time         `json:"last_activity_at"`
	Summary         datatypes.JSONMap `json:"summary"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// TotalViolations sums the per-type counters.
func (s ProctoringSession) TotalViolations() int {
	return s.TabSwitches + s.FullscreenExits + s.WindowBlurs + s.CopyPastes + s.DevtoolsOpens + s.OtherViolations
}

// CounterField bumps the session counter matching a violation type.
func (s *ProctoringSession) CounterField(violationType string) *int {
	switch violationType {
	case ViolationTabSwitch:
		return &s.TabSwitches
	case ViolationFullscreenExit:
		return &s.FullscreenExits
	case ViolationWindowBlur:
		return &s.WindowBlurs
	case ViolationCopyPaste:
		return &s.CopyPastes
	case ViolationDevtoolsOpen:
		return &s.DevtoolsOpens
	default:
		return &s.OtherViolations
	}
}

// ProctoringViolation is an append-only audit row referencing a session. Only a
// reviewer marking it reviewed mutates it after creation.
type ProctoringViolation struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	SessionID    uint              `gorm:"not null;index" json:"session_id"`
	Type         string            `gorm:"size:32;not null;index" json:"type"`
	Severity     string            `gorm:"size:16;not null" json:"severity"`
	OccurredAt   time.Time         `json:"occurred_at"`
	Details      string            `gorm:"type:text" json:"details"`
	SubmissionID *uint             `json:"submission_id"`
	Reviewed     bool              `gorm:"default:false;index" json:"reviewed"`
	ReviewerID   *uint             `json:"reviewer_id"`
	ReviewNotes  string            `gorm:"type:text" json:"review_notes"`
	CreatedAt    time.Time         `json:"created_at"`
	Session      ProctoringSession `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}
