package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/codelab-api/internal/models"
)

// ProctoringRepository persists proctoring sessions and their violation log.
type ProctoringRepository interface {
	GetActiveSession(ctx context.Context, labID string, studentID uint) (models.ProctoringSession, error)
	CreateSession(ctx context.Context, session *models.ProctoringSession) error
	UpdateSession(ctx context.Context, session *models.ProctoringSession) error
	EndSession(ctx context.Context, sessionID uint, endedAt time.Time) error
	RecordViolation(ctx context.Context, session *models.ProctoringSession, violation *models.ProctoringViolation) error
	ListSessionsByLab(ctx context.Context, labID string) ([]models.ProctoringSession, error)
	ListViolationsByLab(ctx context.Context, labID string) ([]models.ProctoringViolation, error)
	GetViolation(ctx context.Context, id uint) (models.ProctoringViolation, error)
	SaveViolation(ctx context.Context, violation *models.ProctoringViolation) error
}

// NewProctoringRepository constructs a proctoring repository.
func NewProctoringRepository(db *gorm.DB) ProctoringRepository {
	return &proctoringRepository{db: db}
}

type proctoringRepository struct {
	db *gorm.DB
}

func (r *proctoringRepository) GetActiveSession(ctx context.Context, labID string, studentID uint) (models.ProctoringSession, error) {
	var session models.ProctoringSession
	err := r.db.WithContext(ctx).
		Where("lab_id = ? AND student_id = ? AND active = ?", labID, studentID, true).
		First(&session).Error
	if err != nil {
		return models.ProctoringSession{}, err
	}
	return session, nil
}

func (r *proctoringRepository) CreateSession(ctx context.Context, session *models.ProctoringSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *proctoringRepository) UpdateSession(ctx context.Context, session *models.ProctoringSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}

func (r *proctoringRepository) EndSession(ctx context.Context, sessionID uint, endedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.ProctoringSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]interface{}{"active": false, "ended_at": endedAt}).Error
}

// RecordViolation appends the violation row and bumps the session counters in
// one transaction; the audit log and the counters cannot drift apart.
func (r *proctoringRepository) RecordViolation(ctx context.Context, session *models.ProctoringSession, violation *models.ProctoringViolation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(violation).Error; err != nil {
			return err
		}
		return tx.Save(session).Error
	})
}

func (r *proctoringRepository) ListSessionsByLab(ctx context.Context, labID string) ([]models.ProctoringSession, error) {
	var sessions []models.ProctoringSession
	err := r.db.WithContext(ctx).
		Where("lab_id = ?", labID).
		Order("started_at ASC").
		Find(&sessions).Error
	return sessions, err
}

func (r *proctoringRepository) ListViolationsByLab(ctx context.Context, labID string) ([]models.ProctoringViolation, error) {
	var violations []models.ProctoringViolation
	err := r.db.WithContext(ctx).
		Joins("JOIN proctoring_sessions ON proctoring_sessions.id = proctoring_violations.session_id").
		Where("proctoring_sessions.lab_id = ?", labID).
		Order("proctoring_violations.occurred_at ASC").
		Find(&violations).Error
	return violations, err
}

func (r *proctoringRepository) GetViolation(ctx context.Context, id uint) (models.ProctoringViolation, error) {
	var violation models.ProctoringViolation
	err := r.db.WithContext(ctx).First(&violation, id).Error
	if err != nil {
		return models.ProctoringViolation{}, err
	}
	return violation, nil
}

func (r *proctoringRepository) SaveViolation(ctx context.Context, violation *models.ProctoringViolation) error {
	return r.db.WithContext(ctx).Save(violation).Error
}
