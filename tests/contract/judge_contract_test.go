package contract_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/codelab-api/internal/dto"
	"github.com/noah-isme/codelab-api/internal/handler"
)

type openAPISpec struct {
	Paths      map[string]map[string]json.RawMessage `json:"paths"`
	Components struct {
		Schemas map[string]json.RawMessage `json:"schemas"`
	} `json:"components"`
}

func TestJudgeSpecificationIncludesAllEndpoints(t *testing.T) {
	spec := loadSpec(t, "docs/api/judge.json")

	requiredPaths := []string{
		"/api/v2/judge/run",
		"/api/v2/judge/submissions",
		"/api/v2/judge/submissions/{id}",
		"/api/v2/judge/submissions/{id}/evaluate",
		"/api/v2/judge/submissions/{id}/plagiarism",
		"/api/v2/labs/{labID}/violations",
		"/api/v2/labs/{labID}/sessions",
		"/api/v2/labs/{labID}/sessions/end",
		"/api/v2/labs/{labID}/plagiarism",
		"/api/v2/labs/{labID}/monitor/ws",
		"/api/v2/labs/{labID}/monitor/activities",
		"/api/v2/violations/{id}/review",
	}

	for _, path := range requiredPaths {
		if _, ok := spec.Paths[path]; !ok {
			t.Fatalf("expected judge spec to contain path %s", path)
		}
	}

	for _, schema := range []string{"Submission", "SampleRun", "PlagiarismReport", "ProctoringSession", "ProctoringViolation", "StudentActivity"} {
		if _, ok := spec.Components.Schemas[schema]; !ok {
			t.Fatalf("expected judge spec to contain schema %s", schema)
		}
	}
}

type contractEvaluationService struct {
	response dto.SubmissionResponse
}

func (s contractEvaluationService) Submit(context.Context, uint, dto.SubmissionRequest) (dto.SubmissionResponse, error) {
	return s.response, nil
}

func (s contractEvaluationService) Get(context.Context, uint, uint, string) (dto.SubmissionResponse, error) {
	return s.response, nil
}

func (s contractEvaluationService) Evaluate(context.Context, uint) (dto.SubmissionResponse, error) {
	return s.response, nil
}

func (s contractEvaluationService) SampleRun(context.Context, dto.SampleRunRequest) (dto.SampleRunResponse, error) {
	return dto.SampleRunResponse{Status: "success"}, nil
}

type contractPlagiarismService struct{}

func (contractPlagiarismService) Analyze(context.Context, uint) (dto.PlagiarismReportResponse, error) {
	return dto.PlagiarismReportResponse{}, nil
}

func (contractPlagiarismService) Report(context.Context, uint) (dto.PlagiarismReportResponse, error) {
	return dto.PlagiarismReportResponse{}, nil
}

func (contractPlagiarismService) AnalyzeLab(context.Context, string) (dto.LabAnalysisResponse, error) {
	return dto.LabAnalysisResponse{}, nil
}

func TestSubmissionResponseContract(t *testing.T) {
	schemaPath, err := filepath.Abs(filepath.Join("..", "contracts", "submission_response.schema.json"))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)

	submission := dto.SubmissionResponse{
		ID:          12,
		ProblemID:   7,
		LabID:       "lab-1",
		StudentID:   42,
		Language:    "python",
		Status:      "accepted",
		PassedCases: 2,
		TotalCases:  2,
		Score:       100,
		ExecTimeMs:  35,
		MemoryKB:    2048,
		CreatedAt:   time.Now().UTC(),
		Results: []dto.ExecutionResultResponse{
			{TestCaseID: 1, OrderIndex: 0, Status: "accepted", Stdout: "4\n", TimeMs: 17, MemoryKB: 1024, Passed: true, PointsEarned: 50},
			{TestCaseID: 2, OrderIndex: 1, Status: "accepted", Stdout: "6\n", TimeMs: 18, MemoryKB: 1024, Passed: true, PointsEarned: 50},
		},
	}

	judge := handler.NewSubmissionHandler(contractEvaluationService{response: submission}, contractPlagiarismService{}, zerolog.Nop())

	app := fiber.New()
	group := app.Group("/api/v2/judge", func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(42))
		c.Locals("user_role", "student")
		return c.Next()
	})
	judge.Register(group)

	req := httptest.NewRequest(http.MethodGet, "/api/v2/judge/submissions/12", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}

func loadSpec(t *testing.T, relative string) openAPISpec {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("failed to resolve caller")
	}
	base := filepath.Join(filepath.Dir(filename), "..", "..")
	fullPath := filepath.Join(base, relative)

	raw, err := os.ReadFile(fullPath)
	if err != nil {
		t.Fatalf("failed to read %s: %v", fullPath, err)
	}
	var spec openAPISpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		t.Fatalf("failed to unmarshal %s: %v", fullPath, err)
	}
	return spec
}
