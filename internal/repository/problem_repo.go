package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/codelab-api/internal/models"
)

// ProblemRepository exposes read access to the problem catalog. Problems and
// test cases are owned by the catalog service and treated as immutable here.
type ProblemRepository interface {
	GetByID(ctx context.Context, id uint) (models.Problem, error)
	ListByLab(ctx context.Context, labID string) ([]models.Problem, error)
}

// NewProblemRepository constructs a problem repository.
func NewProblemRepository(db *gorm.DB) ProblemRepository {
	return &problemRepository{db: db}
}

type problemRepository struct {
	db *gorm.DB
}

func (r *problemRepository) GetByID(ctx context.Context, id uint) (models.Problem, error) {
	var problem models.Problem
	err := r.db.WithContext(ctx).
		Preload("TestCases", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index ASC")
		}).
		First(&problem, id).Error
	if err != nil {
		return models.Problem{}, err
	}
	return problem, nil
}

func (r *problemRepository) ListByLab(ctx context.Context, labID string) ([]models.Problem, error) {
	var problems []models.Problem
	err := r.db.WithContext(ctx).
		Where("lab_id = ?", labID).
		Order("id ASC").
		Find(&problems).Error
	return problems, err
}
