package dto

import (
	"time"

	"github.com/noah-isme/codelab-api/internal/models"
)

// SubmissionRequest represents the payload for creating a judge submission.
type SubmissionRequest struct {
	ProblemID uint   `json:"problem_id" validate:"required,gt=0"`
	Language  string `json:"language" validate:"required"`
	Source    string `json:"source" validate:"required,min=1"`
}

// SampleRunRequest represents an ad-hoc "run" action: one execution against
// caller-supplied input, nothing persisted.
type SampleRunRequest struct {
	Language       string `json:"language" validate:"required"`
	Source         string `json:"source" validate:"required,min=1"`
	Stdin          string `json:"stdin"`
	ExpectedOutput string `json:"expected_output"`
	TimeLimitSec   int    `json:"time_limit_sec" validate:"omitempty,gt=0,lte=30"`
	MemoryLimitMB  int    `json:"memory_limit_mb" validate:"omitempty,gt=0,lte=1024"`
}

// ExecutionResultResponse is the per-test-case outcome exposed to API consumers.
type ExecutionResultResponse struct {
	TestCaseID   uint   `json:"test_case_id"`
	OrderIndex   int    `json:"order_index"`
	Status       string `json:"status"`
	Stdout       string `json:"stdout,omitempty"`
	Expected     string `json:"expected,omitempty"`
	Stderr       string `json:"stderr,omitempty"`
	TimeMs       int64  `json:"time_ms"`
	MemoryKB     int64  `json:"memory_kb"`
	Passed       bool   `json:"passed"`
	PointsEarned int    `json:"points_earned"`
}

// SubmissionResponse represents a graded submission to API consumers.
type SubmissionResponse struct {
	ID          uint                      `json:"id"`
	ProblemID   uint                      `json:"problem_id"`
	LabID       string                    `json:"lab_id"`
	StudentID   uint                      `json:"student_id"`
	Language    string                    `json:"language"`
	Source      string                    `json:"source,omitempty"`
	Status      string                    `json:"status"`
	PassedCases int                       `json:"passed_cases"`
	TotalCases  int                       `json:"total_cases"`
	Score       int                       `json:"score"`
	ExecTimeMs  int64                     `json:"exec_time_ms"`
	MemoryKB    int64                     `json:"memory_kb"`
	CreatedAt   time.Time                 `json:"created_at"`
	Results     []ExecutionResultResponse `json:"results,omitempty"`
}

// SampleRunResponse is the outcome of an ad-hoc run.
type SampleRunResponse struct {
	Status   string `json:"status"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr,omitempty"`
	TimeMs   int64  `json:"time_ms"`
	MemoryKB int64  `json:"memory_kb"`
	Matched  *bool  `json:"matched,omitempty"`
}

// NewSubmissionResponse builds a response DTO from a model. Per-case outputs and
// expectations are redacted unless the viewer may see detail (owner or staff).
func NewSubmissionResponse(submission models.Submission, includeSource bool, includeDetail bool) SubmissionResponse {
	response := SubmissionResponse{
		ID:          submission.ID,
		ProblemID:   submission.ProblemID,
		LabID:       submission.LabID,
		StudentID:   submission.StudentID,
		Language:    submission.Language,
		Status:      submission.Status,
		PassedCases: submission.PassedCases,
		TotalCases:  submission.TotalCases,
		Score:       submission.Score,
		ExecTimeMs:  submission.ExecTimeMs,
		MemoryKB:    submission.MemoryKB,
		CreatedAt:   submission.CreatedAt,
	}

	if includeSource {
		response.Source = submission.Source
	}

	if len(submission.Results) > 0 {
		results := make([]ExecutionResultResponse, 0, len(submission.Results))
		for _, result := range submission.Results {
			entry := ExecutionResultResponse{
				TestCaseID:   result.TestCaseID,
				OrderIndex:   result.OrderIndex,
				Status:       result.Status,
				TimeMs:       result.TimeMs,
				MemoryKB:     result.MemoryKB,
				Passed:       result.Passed,
				PointsEarned: result.PointsEarned,
			}
			if includeDetail {
				entry.Stdout = result.Stdout
				entry.Expected = result.Expected
				entry.Stderr = result.Stderr
			}
			results = append(results, entry)
		}
		response.Results = results
	}

	return response
}
