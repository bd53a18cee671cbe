package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/codelab-api/internal/models"
)

// PlagiarismRepository persists similarity reports.
type PlagiarismRepository interface {
	Upsert(ctx context.Context, report *models.PlagiarismReport) error
	GetBySubmission(ctx context.Context, submissionID uint) (models.PlagiarismReport, error)
	FindByFingerprint(ctx context.Context, fingerprint string) ([]models.PlagiarismReport, error)
}

// NewPlagiarismRepository constructs a plagiarism report repository.
func NewPlagiarismRepository(db *gorm.DB) PlagiarismRepository {
	return &plagiarismRepository{db: db}
}

type plagiarismRepository struct {
	db *gorm.DB
}

// Upsert stores the report, superseding any prior analysis for the submission.
func (r *plagiarismRepository) Upsert(ctx context.Context, report *models.PlagiarismReport) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "submission_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"normalized_code", "fingerprint", "similarity_score", "matches", "analyzed", "analyzed_at", "updated_at",
		}),
	}).Create(report).Error
}

func (r *plagiarismRepository) GetBySubmission(ctx context.Context, submissionID uint) (models.PlagiarismReport, error) {
	var report models.PlagiarismReport
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		First(&report).Error
	if err != nil {
		return models.PlagiarismReport{}, err
	}
	return report, nil
}

// FindByFingerprint returns reports sharing a content fingerprint, used for
// exact-duplicate lookup without a full comparison pass.
func (r *plagiarismRepository) FindByFingerprint(ctx context.Context, fingerprint string) ([]models.PlagiarismReport, error) {
	var reports []models.PlagiarismReport
	err := r.db.WithContext(ctx).
		Where("fingerprint = ?", fingerprint).
		Find(&reports).Error
	return reports, err
}
