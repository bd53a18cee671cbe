package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/codelab-api/internal/dto"
	"github.com/noah-isme/codelab-api/internal/handler"
	"github.com/noah-isme/codelab-api/internal/service"
)

type mockEvaluationService struct {
	submitted dto.SubmissionRequest
	response  dto.SubmissionResponse
	runResp   dto.SampleRunResponse
	err       error
}

func (m *mockEvaluationService) Submit(_ context.Context, studentID uint, payload dto.SubmissionRequest) (dto.SubmissionResponse, error) {
	m.submitted = payload
	if m.err != nil {
		return dto.SubmissionResponse{}, m.err
	}
	response := m.response
	response.StudentID = studentID
	return response, nil
}

func (m *mockEvaluationService) Get(_ context.Context, id uint, viewerID uint, role string) (dto.SubmissionResponse, error) {
	if m.err != nil {
		return dto.SubmissionResponse{}, m.err
	}
	return m.response, nil
}

func (m *mockEvaluationService) Evaluate(_ context.Context, id uint) (dto.SubmissionResponse, error) {
	if m.err != nil {
		return dto.SubmissionResponse{}, m.err
	}
	return m.response, nil
}

func (m *mockEvaluationService) SampleRun(_ context.Context, payload dto.SampleRunRequest) (dto.SampleRunResponse, error) {
	if m.err != nil {
		return dto.SampleRunResponse{}, m.err
	}
	return m.runResp, nil
}

type mockPlagiarismService struct {
	report dto.PlagiarismReportResponse
	batch  dto.LabAnalysisResponse
	err    error
}

func (m *mockPlagiarismService) Analyze(_ context.Context, submissionID uint) (dto.PlagiarismReportResponse, error) {
	if m.err != nil {
		return dto.PlagiarismReportResponse{}, m.err
	}
	return m.report, nil
}

func (m *mockPlagiarismService) Report(_ context.Context, submissionID uint) (dto.PlagiarismReportResponse, error) {
	if m.err != nil {
		return dto.PlagiarismReportResponse{}, m.err
	}
	return m.report, nil
}

func (m *mockPlagiarismService) AnalyzeLab(_ context.Context, labID string) (dto.LabAnalysisResponse, error) {
	if m.err != nil {
		return dto.LabAnalysisResponse{}, m.err
	}
	return m.batch, nil
}

func newJudgeApp(evaluations service.EvaluationService, plagiarism service.PlagiarismService, userID uint, role string) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/v2/judge", func(c *fiber.Ctx) error {
		if userID != 0 {
			c.Locals("user_id", userID)
		}
		if role != "" {
			c.Locals("user_role", role)
		}
		return c.Next()
	})
	handler.NewSubmissionHandler(evaluations, plagiarism, zerolog.New(io.Discard)).Register(group)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestSubmissionHandlerCreate(t *testing.T) {
	svc := &mockEvaluationService{response: dto.SubmissionResponse{ID: 3, Status: "accepted", Score: 100}}
	app := newJudgeApp(svc, &mockPlagiarismService{}, 42, "student")

	resp := postJSON(t, app, "/api/v2/judge/submissions", dto.SubmissionRequest{ProblemID: 7, Language: "python", Source: "print(1)"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, uint(7), svc.submitted.ProblemID)

	var envelope struct {
		Success bool                   `json:"success"`
		Data    dto.SubmissionResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.True(t, envelope.Success)
	require.Equal(t, "accepted", envelope.Data.Status)
	require.Equal(t, uint(42), envelope.Data.StudentID)
}

func TestSubmissionHandlerCreateRequiresAuth(t *testing.T) {
	app := newJudgeApp(&mockEvaluationService{}, &mockPlagiarismService{}, 0, "")

	resp := postJSON(t, app, "/api/v2/judge/submissions", dto.SubmissionRequest{ProblemID: 7, Language: "python", Source: "x"})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestSubmissionHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"unsupported language", service.ErrUnsupportedLanguage, fiber.StatusBadRequest},
		{"problem missing", service.ErrProblemNotFound, fiber.StatusNotFound},
		{"forbidden", service.ErrSubmissionForbidden, fiber.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockEvaluationService{err: tc.err}
			app := newJudgeApp(svc, &mockPlagiarismService{}, 42, "student")
			resp := postJSON(t, app, "/api/v2/judge/submissions", dto.SubmissionRequest{ProblemID: 7, Language: "python", Source: "x"})
			require.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestSubmissionHandlerEvaluateIsStaffOnly(t *testing.T) {
	svc := &mockEvaluationService{response: dto.SubmissionResponse{ID: 3, Status: "accepted"}}

	student := newJudgeApp(svc, &mockPlagiarismService{}, 42, "student")
	resp := postJSON(t, student, "/api/v2/judge/submissions/3/evaluate", nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	staff := newJudgeApp(svc, &mockPlagiarismService{}, 1, "faculty")
	resp = postJSON(t, staff, "/api/v2/judge/submissions/3/evaluate", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestSubmissionHandlerSampleRun(t *testing.T) {
	matched := true
	svc := &mockEvaluationService{runResp: dto.SampleRunResponse{Status: "success", Stdout: "4\n", Matched: &matched}}
	app := newJudgeApp(svc, &mockPlagiarismService{}, 42, "student")

	resp := postJSON(t, app, "/api/v2/judge/run", dto.SampleRunRequest{Language: "python", Source: "print(2+2)", ExpectedOutput: "4"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var envelope struct {
		Data dto.SampleRunResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.NotNil(t, envelope.Data.Matched)
	require.True(t, *envelope.Data.Matched)
}

func TestSubmissionHandlerPlagiarismReportStaffOnly(t *testing.T) {
	plagiarism := &mockPlagiarismService{report: dto.PlagiarismReportResponse{SubmissionID: 3, SimilarityScore: 84.5}}

	student := newJudgeApp(&mockEvaluationService{}, plagiarism, 42, "student")
	req := httptest.NewRequest(http.MethodGet, "/api/v2/judge/submissions/3/plagiarism", nil)
	resp, err := student.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	staff := newJudgeApp(&mockEvaluationService{}, plagiarism, 1, "admin")
	req = httptest.NewRequest(http.MethodGet, "/api/v2/judge/submissions/3/plagiarism", nil)
	resp, err = staff.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var envelope struct {
		Data dto.PlagiarismReportResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.InDelta(t, 84.5, envelope.Data.SimilarityScore, 0.001)
}
