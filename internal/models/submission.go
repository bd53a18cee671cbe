package models

import "time"

// SubmissionStatus enumerates the terminal verdicts a graded submission can carry.
const (
	SubmissionStatusPending             = "pending"
	SubmissionStatusAccepted            = "accepted"
	SubmissionStatusWrongAnswer         = "wrong_answer"
	SubmissionStatusCompilationError    = "compilation_error"
	SubmissionStatusTimeLimitExceeded   = "time_limit_exceeded"
	SubmissionStatusMemoryLimitExceeded = "memory_limit_exceeded"
	SubmissionStatusRuntimeError        = "runtime_error"
)

// Submission represents one student's attempt at one problem.
// Aggregate fields are written only by the evaluation engine; the status is
// always derived from the execution result set, never set independently.
type Submission struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	ProblemID   uint              `gorm:"not null;index" json:"problem_id"`
	LabID       string            `gorm:"size:64;index" json:"lab_id"`
	StudentID   uint              `gorm:"not null;index" json:"student_id"`
	Language    string            `gorm:"size:32;not null" json:"language"`
	Source      string            `gorm:"type:text" json:"source"`
	Status      string            `gorm:"size:32;not null;default:pending" json:"status"`
	PassedCases int               `gorm:"default:0" json:"passed_cases"`
	TotalCases  int               `gorm:"default:0" json:"total_cases"`
	Score       int               `gorm:"default:0" json:"score"`
	ExecTimeMs  int64             `gorm:"default:0" json:"exec_time_ms"`
	MemoryKB    int64             `gorm:"default:0" json:"memory_kb"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Problem     Problem           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"problem,omitempty"`
	Results     []ExecutionResult `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"results,omitempty"`
	Report      *PlagiarismReport `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"report,omitempty"`
}

// IsGraded reports whether the submission has a terminal verdict.
func (s Submission) IsGraded() bool {
	return s.Status != "" && s.Status != SubmissionStatusPending
}

// ExecutionResult is one row per (submission, test case). Re-evaluation replaces
// the full set atomically; individual rows are never mutated.
type ExecutionResult struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"not null;index" json:"submission_id"`
	TestCaseID   uint      `gorm:"not null" json:"test_case_id"`
	OrderIndex   int       `gorm:"default:0" json:"order_index"`
	Status       string    `gorm:"size:32;not null" json:"status"`
	Stdout       string    `gorm:"type:text" json:"stdout"`
	Expected     string    `gorm:"type:text" json:"expected"`
	Stderr       string    `gorm:"type:text" json:"stderr"`
	TimeMs       int64     `gorm:"default:0" json:"time_ms"`
	MemoryKB     int64     `gorm:"default:0" json:"memory_kb"`
	Passed       bool      `gorm:"default:false" json:"passed"`
	PointsEarned int       `gorm:"default:0" json:"points_earned"`
	CreatedAt    time.Time `json:"created_at"`
}
