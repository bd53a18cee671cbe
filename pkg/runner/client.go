package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "codelab",
		Subsystem: "runner",
		Name:      "execution_duration_seconds",
		Help:      "Duration of external runner executions",
		Buckets:   prometheus.DefBuckets,
	}, []string{"language"})

	runTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codelab",
		Subsystem: "runner",
		Name:      "execution_timeouts_total",
		Help:      "Number of executions cut off by the caller time budget",
	}, []string{"language"})

	runFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codelab",
		Subsystem: "runner",
		Name:      "execution_failures_total",
		Help:      "Number of executions that failed at the transport level",
	}, []string{"language"})
)

// timeBudgetBuffer is added on top of the per-run time limit so the external
// service gets a chance to report its own timeout before we cut the call.
const timeBudgetBuffer = 3 * time.Second

// ErrUnsupportedLanguage indicates the requested language is not in the supported set.
// Validation happens client-side; nothing is sent to the external service.
var ErrUnsupportedLanguage = fmt.Errorf("unsupported language")

// languageNames maps our language identifiers to the execution service's naming.
var languageNames = map[string]string{
	"python":     "python3",
	"javascript": "nodejs",
	"go":         "go",
	"c":          "c",
	"cpp":        "cpp",
	"java":       "java",
}

// SupportedLanguage reports whether the runner accepts the given language.
func SupportedLanguage(language string) bool {
	_, ok := languageNames[strings.ToLower(strings.TrimSpace(language))]
	return ok
}

// Config groups runner client configuration values.
type Config struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// Client is a thin HTTP client for the external sandboxed execution service.
// It carries no grading logic.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	tracer  trace.Tracer
	logger  zerolog.Logger
}

// NewClient constructs a runner client for the given service endpoint.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("runner base url is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.APIToken,
		http:    &http.Client{Timeout: cfg.Timeout},
		tracer:  otel.Tracer("github.com/noah-isme/codelab-api/pkg/runner"),
		logger:  logger,
	}, nil
}

type executePayload struct {
	Language         string `json:"language"`
	Source           string `json:"source"`
	Stdin            string `json:"stdin"`
	TimeLimitSeconds int    `json:"time_limit_seconds"`
	MemoryLimitMB    int    `json:"memory_limit_mb"`
}

type executeResponse struct {
	Status          string `json:"status"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	ExitCode        int    `json:"exit_code"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	MemoryUsedKB    int64  `json:"memory_used_kb"`
}

// Run executes one piece of code against the external service. The call is
// bounded by the request's time limit plus a fixed buffer regardless of the
// service's own timeout; transport failures come back as an internal_error
// result so callers always receive a well-formed outcome. No retries.
func (c *Client) Run(parent context.Context, req RunRequest) (RunResult, error) {
	language := strings.ToLower(strings.TrimSpace(req.Language))
	remote, ok := languageNames[language]
	if !ok {
		return RunResult{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, req.Language)
	}

	if req.TimeLimitSec <= 0 || req.MemoryLimitMB <= 0 {
		return RunResult{}, fmt.Errorf("time and memory limits must be positive")
	}

	ctx, span := c.tracer.Start(parent, "runner.run", trace.WithAttributes(
		attribute.String("runner.language", language),
		attribute.Int("runner.time_limit_sec", req.TimeLimitSec),
	))
	defer span.End()

	budget := time.Duration(req.TimeLimitSec)*time.Second + timeBudgetBuffer
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	payload := executePayload{
		Language:         remote,
		Source:           req.Source,
		Stdin:            req.Stdin,
		TimeLimitSeconds: req.TimeLimitSec,
		MemoryLimitMB:    req.MemoryLimitMB,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return c.internalFailure(span, language, fmt.Errorf("marshal request: %w", err)), nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return c.internalFailure(span, language, fmt.Errorf("build request: %w", err)), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	runDuration.WithLabelValues(language).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			runTimeouts.WithLabelValues(language).Inc()
			span.SetStatus(codes.Error, "runner call exceeded time budget")
			return RunResult{
				Status: StatusTimeLimitExceeded,
				Stderr: fmt.Sprintf("execution exceeded %ds time budget", req.TimeLimitSec),
				TimeMs: time.Since(start).Milliseconds(),
			}, nil
		}
		return c.internalFailure(span, language, fmt.Errorf("runner call: %w", err)), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return c.internalFailure(span, language, fmt.Errorf("runner returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))), nil
	}

	var data executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return c.internalFailure(span, language, fmt.Errorf("decode response: %w", err)), nil
	}

	return RunResult{
		Status:   normaliseStatus(data.Status),
		Stdout:   data.Stdout,
		Stderr:   data.Stderr,
		ExitCode: data.ExitCode,
		TimeMs:   data.ExecutionTimeMs,
		MemoryKB: data.MemoryUsedKB,
	}, nil
}

func (c *Client) internalFailure(span trace.Span, language string, err error) RunResult {
	runFailures.WithLabelValues(language).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.logger.Warn().Err(err).Str("language", language).Msg("runner call failed")

	return RunResult{
		Status: StatusInternalError,
		Stderr: err.Error(),
	}
}

func normaliseStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success", "ok", "accepted":
		return StatusSuccess
	case "compile_error", "compilation_error":
		return StatusCompileError
	case "time_limit_exceeded", "timeout":
		return StatusTimeLimitExceeded
	case "memory_limit_exceeded", "out_of_memory":
		return StatusMemoryLimitExceeded
	case "runtime_error", "error":
		return StatusRuntimeError
	default:
		return StatusInternalError
	}
}
