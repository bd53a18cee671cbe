package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/codelab-api/internal/models"
)

func setupJudgeDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Problem{},
		&models.TestCase{},
		&models.Submission{},
		&models.ExecutionResult{},
		&models.PlagiarismReport{},
		&models.ProctoringSession{},
		&models.ProctoringViolation{},
	))
	return db
}

func seedProblem(t *testing.T, db *gorm.DB) models.Problem {
	t.Helper()
	problem := models.Problem{
		LabID:         "lab-1",
		Title:         "Sum",
		TimeLimitSec:  5,
		MemoryLimitMB: 256,
		TestCases: []models.TestCase{
			{Input: "2\n", ExpectedOutput: "2\n", Points: 50, OrderIndex: 1},
			{Input: "1\n", ExpectedOutput: "1\n", Points: 50, OrderIndex: 0},
		},
	}
	require.NoError(t, db.Create(&problem).Error)
	return problem
}

func TestProblemRepositoryLoadsCasesInOrder(t *testing.T) {
	db := setupJudgeDB(t)
	repo := NewProblemRepository(db)
	problem := seedProblem(t, db)

	loaded, err := repo.GetByID(context.Background(), problem.ID)
	require.NoError(t, err)
	require.Len(t, loaded.TestCases, 2)
	require.Equal(t, 0, loaded.TestCases[0].OrderIndex)
	require.Equal(t, 1, loaded.TestCases[1].OrderIndex)

	_, err = repo.GetByID(context.Background(), 999)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSubmissionRepositoryReplaceResultsIsIdempotent(t *testing.T) {
	db := setupJudgeDB(t)
	repo := NewSubmissionRepository(db)
	problem := seedProblem(t, db)

	submission := models.Submission{ProblemID: problem.ID, LabID: problem.LabID, StudentID: 7, Language: "python", Source: "x", Status: models.SubmissionStatusPending}
	require.NoError(t, repo.Create(context.Background(), &submission))

	firstPass := []models.ExecutionResult{
		{TestCaseID: problem.TestCases[0].ID, OrderIndex: 0, Status: "runtime_error", Passed: false},
		{TestCaseID: problem.TestCases[1].ID, OrderIndex: 1, Status: "runtime_error", Passed: false},
	}
	submission.Status = models.SubmissionStatusRuntimeError
	require.NoError(t, repo.ReplaceResults(context.Background(), &submission, firstPass))

	secondPass := []models.ExecutionResult{
		{TestCaseID: problem.TestCases[0].ID, OrderIndex: 0, Status: "success", Passed: true, PointsEarned: 50},
		{TestCaseID: problem.TestCases[1].ID, OrderIndex: 1, Status: "success", Passed: true, PointsEarned: 50},
	}
	submission.Status = models.SubmissionStatusAccepted
	submission.Score = 100
	submission.PassedCases = 2
	submission.TotalCases = 2
	require.NoError(t, repo.ReplaceResults(context.Background(), &submission, secondPass))

	reloaded, err := repo.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusAccepted, reloaded.Status)
	require.Equal(t, 100, reloaded.Score)
	require.Len(t, reloaded.Results, 2, "old result rows must be replaced, not appended")
	require.Equal(t, 0, reloaded.Results[0].OrderIndex)

	var count int64
	require.NoError(t, db.Model(&models.ExecutionResult{}).Count(&count).Error)
	require.EqualValues(t, 2, count)
}

func TestSubmissionRepositoryListByLab(t *testing.T) {
	db := setupJudgeDB(t)
	repo := NewSubmissionRepository(db)
	problem := seedProblem(t, db)

	for i := 0; i < 3; i++ {
		submission := models.Submission{ProblemID: problem.ID, LabID: problem.LabID, StudentID: uint(i + 1), Language: "python", Source: "x"}
		require.NoError(t, repo.Create(context.Background(), &submission))
	}
	other := models.Submission{ProblemID: problem.ID, LabID: "lab-2", StudentID: 9, Language: "python", Source: "x"}
	require.NoError(t, repo.Create(context.Background(), &other))

	submissions, err := repo.ListByLab(context.Background(), "lab-1")
	require.NoError(t, err)
	require.Len(t, submissions, 3)
}

func TestPlagiarismRepositoryUpsertSupersedes(t *testing.T) {
	db := setupJudgeDB(t)
	repo := NewPlagiarismRepository(db)
	problem := seedProblem(t, db)

	submission := models.Submission{ProblemID: problem.ID, LabID: problem.LabID, StudentID: 7, Language: "python", Source: "x"}
	require.NoError(t, db.Create(&submission).Error)

	now := time.Now().UTC()
	first := models.PlagiarismReport{SubmissionID: submission.ID, Fingerprint: "aaa", SimilarityScore: 10, Analyzed: true, AnalyzedAt: &now}
	require.NoError(t, repo.Upsert(context.Background(), &first))

	second := models.PlagiarismReport{SubmissionID: submission.ID, Fingerprint: "bbb", SimilarityScore: 91, Analyzed: true, AnalyzedAt: &now}
	require.NoError(t, repo.Upsert(context.Background(), &second))

	report, err := repo.GetBySubmission(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Equal(t, "bbb", report.Fingerprint)
	require.InDelta(t, 91, report.SimilarityScore, 0.001)

	var count int64
	require.NoError(t, db.Model(&models.PlagiarismReport{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestProctoringRepositoryRecordViolationIsAtomic(t *testing.T) {
	db := setupJudgeDB(t)
	repo := NewProctoringRepository(db)

	session := models.ProctoringSession{LabID: "lab-1", StudentID: 7, StartedAt: time.Now().UTC(), Active: true, LastActivityAt: time.Now().UTC()}
	require.NoError(t, repo.CreateSession(context.Background(), &session))

	session.TabSwitches = 1
	violation := models.ProctoringViolation{SessionID: session.ID, Type: models.ViolationTabSwitch, Severity: models.SeverityMedium, OccurredAt: time.Now().UTC()}
	require.NoError(t, repo.RecordViolation(context.Background(), &session, &violation))
	require.NotZero(t, violation.ID)

	stored, err := repo.GetActiveSession(context.Background(), "lab-1", 7)
	require.NoError(t, err)
	require.Equal(t, 1, stored.TabSwitches)

	violations, err := repo.ListViolationsByLab(context.Background(), "lab-1")
	require.NoError(t, err)
	require.Len(t, violations, 1)
	require.Equal(t, models.ViolationTabSwitch, violations[0].Type)
}

func TestProctoringRepositoryEndSession(t *testing.T) {
	db := setupJudgeDB(t)
	repo := NewProctoringRepository(db)

	session := models.ProctoringSession{LabID: "lab-1", StudentID: 7, StartedAt: time.Now().UTC(), Active: true, LastActivityAt: time.Now().UTC()}
	require.NoError(t, repo.CreateSession(context.Background(), &session))

	require.NoError(t, repo.EndSession(context.Background(), session.ID, time.Now().UTC()))

	_, err := repo.GetActiveSession(context.Background(), "lab-1", 7)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	sessions, err := repo.ListSessionsByLab(context.Background(), "lab-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.False(t, sessions[0].Active)
	require.NotNil(t, sessions[0].EndedAt)
}
