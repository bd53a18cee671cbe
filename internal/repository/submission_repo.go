package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/codelab-api/internal/models"
)

// SubmissionRepository exposes persistence helpers for judge submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	ListByProblem(ctx context.Context, problemID uint) ([]models.Submission, error)
	ListByLab(ctx context.Context, labID string) ([]models.Submission, error)
	ReplaceResults(ctx context.Context, submission *models.Submission, results []models.ExecutionResult) error
}

// NewSubmissionRepository constructs a submission repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

type submissionRepository struct {
	db *gorm.DB
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).
		Preload("Problem").
		Preload("Results", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index ASC")
		}).
		Preload("Report").
		First(&submission, id).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) ListByProblem(ctx context.Context, problemID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	err := r.db.WithContext(ctx).
		Where("problem_id = ?", problemID).
		Order("created_at ASC").
		Find(&submissions).Error
	return submissions, err
}

func (r *submissionRepository) ListByLab(ctx context.Context, labID string) ([]models.Submission, error) {
	var submissions []models.Submission
	err := r.db.WithContext(ctx).
		Where("lab_id = ?", labID).
		Order("created_at ASC").
		Find(&submissions).Error
	return submissions, err
}

// ReplaceResults swaps the submission's execution result set and updates its
// aggregate fields in one transaction, so readers never observe fresh counts
// next to a stale status.
func (r *submissionRepository) ReplaceResults(ctx context.Context, submission *models.Submission, results []models.ExecutionResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("submission_id = ?", submission.ID).Delete(&models.ExecutionResult{}).Error; err != nil {
			return err
		}

		for i := range results {
			results[i].ID = 0
			results[i].SubmissionID = submission.ID
		}

		if len(results) > 0 {
			if err := tx.Create(&results).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.Submission{}).
			Where("id = ?", submission.ID).
			Updates(map[string]interface{}{
				"status":       submission.Status,
				"passed_cases": submission.PassedCases,
				"total_cases":  submission.TotalCases,
				"score":        submission.Score,
				"exec_time_ms": submission.ExecTimeMs,
				"memory_kb":    submission.MemoryKB,
			}).Error
	})
}
