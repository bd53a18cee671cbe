package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/noah-isme/codelab-api/internal/dto"
	"github.com/noah-isme/codelab-api/internal/models"
	"github.com/noah-isme/codelab-api/internal/observability"
	"github.com/noah-isme/codelab-api/internal/repository"
	"github.com/noah-isme/codelab-api/pkg/runner"
)

// EvaluationService grades submissions against their problem's test cases.
type EvaluationService interface {
	Submit(ctx context.Context, studentID uint, payload dto.SubmissionRequest) (dto.SubmissionResponse, error)
	Get(ctx context.Context, id uint, viewerID uint, role string) (dto.SubmissionResponse, error)
	Evaluate(ctx context.Context, id uint) (dto.SubmissionResponse, error)
	SampleRun(ctx context.Context, payload dto.SampleRunRequest) (dto.SampleRunResponse, error)
}

// ErrSubmissionNotFound indicates the submission cannot be located.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrProblemNotFound indicates the referenced problem does not exist.
var ErrProblemNotFound = errors.New("problem not found")

// ErrSubmissionForbidden indicates the caller may not access the submission.
var ErrSubmissionForbidden = errors.New("forbidden")

// ErrUnsupportedLanguage indicates the requested language is outside the supported set.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// EvaluationConfig describes grading configuration knobs.
type EvaluationConfig struct {
	MaxConcurrentCases   int
	DefaultTimeLimitSec  int
	DefaultMemoryLimitMB int
}

type evaluationService struct {
	submissions repository.SubmissionRepository
	problems    repository.ProblemRepository
	runner      runner.Runner
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	config      EvaluationConfig
}

// NewEvaluationService constructs the evaluation engine.
func NewEvaluationService(submissionRepo repository.SubmissionRepository, problemRepo repository.ProblemRepository, run runner.Runner, validate *validator.Validate, logger zerolog.Logger, cfg EvaluationConfig) EvaluationService {
	if cfg.MaxConcurrentCases <= 0 {
		cfg.MaxConcurrentCases = 4
	}
	if cfg.DefaultTimeLimitSec <= 0 {
		cfg.DefaultTimeLimitSec = 5
	}
	if cfg.DefaultMemoryLimitMB <= 0 {
		cfg.DefaultMemoryLimitMB = 256
	}

	return &evaluationService{
		submissions: submissionRepo,
		problems:    problemRepo,
		runner:      run,
		validator:   validate,
		logger:      logger.With().Str("component", "evaluation_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/codelab-api/internal/service/evaluation"),
		config:      cfg,
	}
}

func (s *evaluationService) Submit(ctx context.Context, studentID uint, payload dto.SubmissionRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	language := strings.ToLower(strings.TrimSpace(payload.Language))
	if !runner.SupportedLanguage(language) {
		return dto.SubmissionResponse{}, ErrUnsupportedLanguage
	}

	problem, err := s.problems.GetByID(ctx, payload.ProblemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrProblemNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	submission := models.Submission{
		ProblemID: problem.ID,
		LabID:     problem.LabID,
		StudentID: studentID,
		Language:  language,
		Source:    payload.Source,
		Status:    models.SubmissionStatusPending,
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	if err := s.evaluate(ctx, &submission, problem); err != nil {
		return dto.SubmissionResponse{}, err
	}

	return dto.NewSubmissionResponse(submission, true, true), nil
}

func (s *evaluationService) Get(ctx context.Context, id uint, viewerID uint, role string) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	isOwner := viewerID != 0 && viewerID == submission.StudentID
	isStaff := isStaffRole(role)
	if !isOwner && !isStaff {
		return dto.SubmissionResponse{}, ErrSubmissionForbidden
	}

	return dto.NewSubmissionResponse(submission, isOwner || isStaff, isStaff), nil
}

// Evaluate re-grades an existing submission, replacing its result set atomically.
func (s *evaluationService) Evaluate(ctx context.Context, id uint) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	problem, err := s.problems.GetByID(ctx, submission.ProblemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrProblemNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if err := s.evaluate(ctx, &submission, problem); err != nil {
		return dto.SubmissionResponse{}, err
	}

	return dto.NewSubmissionResponse(submission, true, true), nil
}

// evaluate runs every test case, derives the verdict, and persists results plus
// aggregates in one transaction. Results are indexed by case position so the
// stored order_index sequence is stable even with concurrent execution.
func (s *evaluationService) evaluate(ctx context.Context, submission *models.Submission, problem models.Problem) error {
	spanCtx, span := s.tracer.Start(ctx, "judge.evaluate", trace.WithAttributes(
		attribute.Int("submission.id", int(submission.ID)),
		attribute.Int("problem.id", int(problem.ID)),
		attribute.String("submission.language", submission.Language),
	))
	defer span.End()

	start := time.Now()

	cases := append([]models.TestCase(nil), problem.TestCases...)
	sort.SliceStable(cases, func(i, j int) bool { return cases[i].OrderIndex < cases[j].OrderIndex })

	results := make([]models.ExecutionResult, len(cases))

	group, groupCtx := errgroup.WithContext(spanCtx)
	group.SetLimit(s.config.MaxConcurrentCases)
	for i, testCase := range cases {
		group.Go(func() error {
			results[i] = s.runCase(groupCtx, *submission, problem, testCase, i)
			return nil
		})
	}
	// Workers never return errors; failures are modeled as result statuses.
	_ = group.Wait()

	s.aggregate(submission, cases, results)

	if err := s.submissions.ReplaceResults(spanCtx, submission, results); err != nil {
		span.RecordError(err)
		return err
	}
	submission.Results = results

	observability.EvaluationsTotal().WithLabelValues(submission.Status).Inc()
	observability.EvaluationDuration().Observe(time.Since(start).Seconds())

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Str("status", submission.Status).
		Int("passed", submission.PassedCases).
		Int("total", submission.TotalCases).
		Int("score", submission.Score).
		Msg("submission graded")

	return nil
}

func (s *evaluationService) runCase(ctx context.Context, submission models.Submission, problem models.Problem, testCase models.TestCase, index int) models.ExecutionResult {
	runResult, err := s.runner.Run(ctx, runner.RunRequest{
		Language:      submission.Language,
		Source:        submission.Source,
		Stdin:         testCase.Input,
		TimeLimitSec:  testCase.EffectiveTimeLimit(problem),
		MemoryLimitMB: testCase.EffectiveMemoryLimit(problem),
	})
	if err != nil {
		// Contract violations only; transport failures already come back as results.
		runResult = runner.RunResult{Status: runner.StatusInternalError, Stderr: err.Error()}
	}

	passed := runResult.Succeeded() && outputsMatch(runResult.Stdout, testCase.ExpectedOutput)
	points := 0
	if passed {
		points = testCase.Points
	}

	return models.ExecutionResult{
		SubmissionID: submission.ID,
		TestCaseID:   testCase.ID,
		OrderIndex:   index,
		Status:       runResult.Status,
		Stdout:       runResult.Stdout,
		Expected:     testCase.ExpectedOutput,
		Stderr:       runResult.Stderr,
		TimeMs:       runResult.TimeMs,
		MemoryKB:     runResult.MemoryKB,
		Passed:       passed,
		PointsEarned: points,
	}
}

func (s *evaluationService) aggregate(submission *models.Submission, cases []models.TestCase, results []models.ExecutionResult) {
	passed := 0
	score := 0
	var maxTime, maxMemory int64
	for _, result := range results {
		if result.Passed {
			passed++
		}
		score += result.PointsEarned
		if result.TimeMs > maxTime {
			maxTime = result.TimeMs
		}
		if result.MemoryKB > maxMemory {
			maxMemory = result.MemoryKB
		}
	}

	submission.PassedCases = passed
	submission.TotalCases = len(cases)
	submission.Score = score
	submission.ExecTimeMs = maxTime
	submission.MemoryKB = maxMemory
	submission.Status = deriveStatus(results)
}

// deriveStatus maps a result set to the submission verdict. Priority order:
// all pass, some pass, compile error, time limit, memory limit, runtime error,
// wrong answer.
func deriveStatus(results []models.ExecutionResult) string {
	if len(results) == 0 {
		return models.SubmissionStatusWrongAnswer
	}

	passed := 0
	hasCompile, hasTimeout, hasMemory, hasRuntime := false, false, false, false
	for _, result := range results {
		if result.Passed {
			passed++
			continue
		}
		switch result.Status {
		case runner.StatusCompileError:
			hasCompile = true
		case runner.StatusTimeLimitExceeded:
			hasTimeout = true
		case runner.StatusMemoryLimitExceeded:
			hasMemory = true
		case runner.StatusRuntimeError, runner.StatusInternalError:
			hasRuntime = true
		}
	}

	switch {
	case passed == len(results):
		return models.SubmissionStatusAccepted
	case passed > 0:
		return models.SubmissionStatusWrongAnswer
	case hasCompile:
		return models.SubmissionStatusCompilationError
	case hasTimeout:
		return models.SubmissionStatusTimeLimitExceeded
	case hasMemory:
		return models.SubmissionStatusMemoryLimitExceeded
	case hasRuntime:
		return models.SubmissionStatusRuntimeError
	default:
		return models.SubmissionStatusWrongAnswer
	}
}

// SampleRun executes one ad-hoc (code, input, expected) triple with the same
// comparison logic as grading. Nothing is persisted.
func (s *evaluationService) SampleRun(ctx context.Context, payload dto.SampleRunRequest) (dto.SampleRunResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SampleRunResponse{}, err
	}

	language := strings.ToLower(strings.TrimSpace(payload.Language))
	if !runner.SupportedLanguage(language) {
		return dto.SampleRunResponse{}, ErrUnsupportedLanguage
	}

	timeLimit := payload.TimeLimitSec
	if timeLimit <= 0 {
		timeLimit = s.config.DefaultTimeLimitSec
	}
	memoryLimit := payload.MemoryLimitMB
	if memoryLimit <= 0 {
		memoryLimit = s.config.DefaultMemoryLimitMB
	}

	result, err := s.runner.Run(ctx, runner.RunRequest{
		Language:      language,
		Source:        payload.Source,
		Stdin:         payload.Stdin,
		TimeLimitSec:  timeLimit,
		MemoryLimitMB: memoryLimit,
	})
	if err != nil {
		return dto.SampleRunResponse{}, err
	}

	response := dto.SampleRunResponse{
		Status:   result.Status,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		TimeMs:   result.TimeMs,
		MemoryKB: result.MemoryKB,
	}

	if payload.ExpectedOutput != "" {
		matched := result.Succeeded() && outputsMatch(result.Stdout, payload.ExpectedOutput)
		response.Matched = &matched
	}

	return response, nil
}

// normalizeOutput strips trailing spaces per line and drops trailing blank
// lines, so benign formatting differences do not fail a comparison while
// content equality stays exact.
func normalizeOutput(output string) string {
	lines := strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	end := len(lines)
	for end > 0 && lines[end-1] == "" {
		end--
	}
	return strings.Join(lines[:end], "\n")
}

func outputsMatch(actual, expected string) bool {
	return normalizeOutput(actual) == normalizeOutput(expected)
}

func isStaffRole(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "faculty", "teacher", "admin":
		return true
	default:
		return false
	}
}
