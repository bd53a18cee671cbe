package dto

import (
	"time"

	"github.com/noah-isme/codelab-api/internal/models"
)

// PlagiarismMatchResponse is one ranked peer entry in a similarity report.
type PlagiarismMatchResponse struct {
	SubmissionID uint      `json:"submission_id"`
	StudentID    uint      `json:"student_id"`
	Similarity   float64   `json:"similarity"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// PlagiarismReportResponse represents a similarity report to API consumers.
type PlagiarismReportResponse struct {
	SubmissionID    uint                      `json:"submission_id"`
	Fingerprint     string                    `json:"fingerprint"`
	SimilarityScore float64                   `json:"similarity_score"`
	Matches         []PlagiarismMatchResponse `json:"matches"`
	Analyzed        bool                      `json:"analyzed"`
	AnalyzedAt      *time.Time                `json:"analyzed_at"`
}

// LabAnalysisResponse aggregates a lab-wide plagiarism batch run.
type LabAnalysisResponse struct {
	LabID       string `json:"lab_id"`
	Analyzed    int    `json:"analyzed"`
	HighRisk    int    `json:"high_risk"`
	MediumRisk  int    `json:"medium_risk"`
	Failed      int    `json:"failed"`
	Submissions int    `json:"submissions"`
}

// NewPlagiarismReportResponse converts a report model into a DTO.
func NewPlagiarismReportResponse(report models.PlagiarismReport) PlagiarismReportResponse {
	matches := report.MatchList()
	out := make([]PlagiarismMatchResponse, 0, len(matches))
	for _, match := range matches {
		out = append(out, PlagiarismMatchResponse{
			SubmissionID: match.SubmissionID,
			StudentID:    match.StudentID,
			Similarity:   match.Similarity,
			SubmittedAt:  match.SubmittedAt,
		})
	}

	return PlagiarismReportResponse{
		SubmissionID:    report.SubmissionID,
		Fingerprint:     report.Fingerprint,
		SimilarityScore: report.SimilarityScore,
		Matches:         out,
		Analyzed:        report.Analyzed,
		AnalyzedAt:      report.AnalyzedAt,
	}
}
