package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/codelab-api/internal/dto"
	"github.com/noah-isme/codelab-api/internal/models"
	"github.com/noah-isme/codelab-api/internal/repository"
)

// PlagiarismService estimates code-reuse risk between submissions to the same problem.
type PlagiarismService interface {
	Analyze(ctx context.Context, submissionID uint) (dto.PlagiarismReportResponse, error)
	Report(ctx context.Context, submissionID uint) (dto.PlagiarismReportResponse, error)
	AnalyzeLab(ctx context.Context, labID string) (dto.LabAnalysisResponse, error)
}

// ErrReportNotFound indicates no report exists for the submission yet.
var ErrReportNotFound = errors.New("plagiarism report not found")

// PlagiarismOptions tunes the detector. Zero values fall back to defaults.
type PlagiarismOptions struct {
	// MatchThreshold is the minimum similarity (0-100) retained in a report.
	MatchThreshold float64
	// MaxMatches caps the ranked peer list.
	MaxMatches int
	// MaxCompareLen caps normalized input size; the alignment is O(n*m).
	MaxCompareLen int
	// StripLiterals also blanks string and numeric literals during
	// normalization. Off by default: it trades sensitivity for robustness
	// against trivial literal edits.
	StripLiterals bool
}

const (
	highRiskThreshold   = 80.0
	mediumRiskThreshold = 50.0
)

type plagiarismService struct {
	reports     repository.PlagiarismRepository
	submissions repository.SubmissionRepository
	logger      zerolog.Logger
	tracer      trace.Tracer
	opts        PlagiarismOptions
}

// NewPlagiarismService constructs the detector.
func NewPlagiarismService(reportRepo repository.PlagiarismRepository, submissionRepo repository.SubmissionRepository, logger zerolog.Logger, opts PlagiarismOptions) PlagiarismService {
	if opts.MatchThreshold <= 0 {
		opts.MatchThreshold = 70
	}
	if opts.MaxMatches <= 0 {
		opts.MaxMatches = 10
	}
	if opts.MaxCompareLen <= 0 {
		opts.MaxCompareLen = 20000
	}

	return &plagiarismService{
		reports:     reportRepo,
		submissions: submissionRepo,
		logger:      logger.With().Str("component", "plagiarism_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/codelab-api/internal/service/plagiarism"),
		opts:        opts,
	}
}

// Analyze compares the submission against every peer submission to the same
// problem from a different student, then upserts its report. The overall score
// is the maximum similarity over the retained match set.
func (s *plagiarismService) Analyze(ctx context.Context, submissionID uint) (dto.PlagiarismReportResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "plagiarism.analyze", trace.WithAttributes(
		attribute.Int("submission.id", int(submissionID)),
	))
	defer span.End()

	submission, err := s.submissions.GetByID(spanCtx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.PlagiarismReportResponse{}, ErrSubmissionNotFound
		}
		return dto.PlagiarismReportResponse{}, err
	}

	peers, err := s.submissions.ListByProblem(spanCtx, submission.ProblemID)
	if err != nil {
		return dto.PlagiarismReportResponse{}, err
	}

	normalized := s.normalize(submission.Source)
	matches := make([]models.PlagiarismMatch, 0)
	for _, peer := range peers {
		// Resubmission is not self-plagiarism; same-student pairs are excluded.
		if peer.ID == submission.ID || peer.StudentID == submission.StudentID {
			continue
		}

		score := similarity(normalized, s.normalize(peer.Source))
		if score < s.opts.MatchThreshold {
			continue
		}

		matches = append(matches, models.PlagiarismMatch{
			SubmissionID: peer.ID,
			StudentID:    peer.StudentID,
			Similarity:   score,
			SubmittedAt:  peer.CreatedAt,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > s.opts.MaxMatches {
		matches = matches[:s.opts.MaxMatches]
	}

	overall := 0.0
	if len(matches) > 0 {
		overall = matches[0].Similarity
	}

	now := time.Now().UTC()
	report := models.PlagiarismReport{
		SubmissionID:    submission.ID,
		NormalizedCode:  normalized,
		Fingerprint:     fingerprint(normalized),
		SimilarityScore: overall,
		Analyzed:        true,
		AnalyzedAt:      &now,
	}
	report.SetMatches(matches)

	if err := s.reports.Upsert(spanCtx, &report); err != nil {
		span.RecordError(err)
		return dto.PlagiarismReportResponse{}, err
	}

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Float64("similarity", overall).
		Int("matches", len(matches)).
		Msg("submission analyzed")

	return dto.NewPlagiarismReportResponse(report), nil
}

func (s *plagiarismService) Report(ctx context.Context, submissionID uint) (dto.PlagiarismReportResponse, error) {
	report, err := s.reports.GetBySubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.PlagiarismReportResponse{}, ErrReportNotFound
		}
		return dto.PlagiarismReportResponse{}, err
	}
	return dto.NewPlagiarismReportResponse(report), nil
}

// AnalyzeLab re-runs detection for every submission in the lab. A failing
// submission is logged and skipped; the batch always completes with accurate
// counts.
func (s *plagiarismService) AnalyzeLab(ctx context.Context, labID string) (dto.LabAnalysisResponse, error) {
	submissions, err := s.submissions.ListByLab(ctx, labID)
	if err != nil {
		return dto.LabAnalysisResponse{}, err
	}

	summary := dto.LabAnalysisResponse{LabID: labID, Submissions: len(submissions)}
	for _, submission := range submissions {
		report, err := s.Analyze(ctx, submission.ID)
		if err != nil {
			summary.Failed++
			s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("lab analysis skipped submission")
			continue
		}

		summary.Analyzed++
		switch {
		case report.SimilarityScore >= highRiskThreshold:
			summary.HighRisk++
		case report.SimilarityScore >= mediumRiskThreshold:
			summary.MediumRisk++
		}
	}

	return summary, nil
}

// normalize strips comments, collapses whitespace runs to a single space, and
// lower-cases the result. String literal contents survive unless StripLiterals
// is set.
func (s *plagiarismService) normalize(source string) string {
	normalized := normalizeCode(source, s.opts.StripLiterals)
	if len(normalized) > s.opts.MaxCompareLen {
		normalized = normalized[:s.opts.MaxCompareLen]
	}
	return normalized
}

func normalizeCode(source string, stripLiterals bool) string {
	var out strings.Builder
	out.Grow(len(source))

	runes := []rune(source)
	i := 0
	for i < len(runes) {
		c := runes[i]

		switch {
		case c == '/' && i+1 < len(runes) && runes[i+1] == '/':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case c == '#':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i += 2
		case c == '"' || c == '\'':
			quote := c
			j := i + 1
			for j < len(runes) && runes[j] != quote {
				if runes[j] == '\\' {
					j++
				}
				j++
			}
			if !stripLiterals {
				end := j
				if end >= len(runes) {
					end = len(runes) - 1
				}
				out.WriteString(string(runes[i : end+1]))
			}
			i = j + 1
		default:
			if stripLiterals && unicode.IsDigit(c) {
				for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
					i++
				}
				break
			}
			out.WriteRune(c)
			i++
		}
	}

	collapsed := strings.Join(strings.Fields(out.String()), " ")
	return strings.ToLower(collapsed)
}

// similarity is a sequence-alignment ratio over runes: 2*LCS/(len(a)+len(b)),
// expressed as a percentage. Symmetric and deterministic; O(n*m), so inputs
// are capped upstream.
func similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 0
	}
	if a == b {
		return 100
	}

	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}

	lcs := prev[len(rb)]
	return 200.0 * float64(lcs) / float64(len(ra)+len(rb))
}

// fingerprint is the hex sha256 of normalized code, used for exact-duplicate
// lookup without a full comparison.
func fingerprint(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
