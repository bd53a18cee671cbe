package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// PlagiarismMatch is one ranked peer entry inside a report.
type PlagiarismMatch struct {
	SubmissionID uint      `json:"submission_id"`
	StudentID    uint      `json:"student_id"`
	Similarity   float64   `json:"similarity"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// PlagiarismReport stores the similarity analysis for one submission.
// Re-analysis supersedes the previous report in place.
type PlagiarismReport struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	SubmissionID    uint           `gorm:"not null;uniqueIndex" json:"submission_id"`
	NormalizedCode  string         `gorm:"type:text" json:"-"`
	Fingerprint     string         `gorm:"size:64;index" json:"fingerprint"`
	SimilarityScore float64        `gorm:"default:0" json:"similarity_score"`
	Matches         datatypes.JSON `gorm:"type:json" json:"-"`
	Analyzed        bool           `gorm:"default:false" json:"analyzed"`
	AnalyzedAt      *time.Time     `json:"analyzed_at"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// SetMatches serializes the ranked match list into the JSON storage column.
func (r *PlagiarismReport) SetMatches(matches []PlagiarismMatch) {
	data, err := json.Marshal(matches)
	if err != nil {
		r.Matches = datatypes.JSON([]byte("[]"))
		return
	}
	r.Matches = datatypes.JSON(data)
}

// MatchList deserializes the stored match list.
func (r PlagiarismReport) MatchList() []PlagiarismMatch {
	if len(r.Matches) == 0 {
		return nil
	}

	var matches []PlagiarismMatch
	if err := json.Unmarshal(r.Matches, &matches); err != nil {
		return nil
	}
	return matches
}
