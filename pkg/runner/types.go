package runner

import "context"

// Run statuses reported by the external execution service, normalised to the
// vocabulary the evaluation engine understands.
const (
	StatusSuccess             = "success"
	StatusCompileError        = "compile_error"
	StatusRuntimeError        = "runtime_error"
	StatusTimeLimitExceeded   = "time_limit_exceeded"
	StatusMemoryLimitExceeded = "memory_limit_exceeded"
	StatusInternalError       = "internal_error"
)

// RunRequest describes one sandboxed execution of a piece of code.
type RunRequest struct {
	Language      string
	Source        string
	Stdin         string
	TimeLimitSec  int
	MemoryLimitMB int
}

// RunResult summarises the outcome of a sandboxed execution. A transport or
// service failure is surfaced as a StatusInternalError result, never as a
// missing result.
type RunResult struct {
	Status   string
	Stdout   string
	Stderr   string
	ExitCode int
	TimeMs   int64
	MemoryKB int64
}

// Succeeded reports whether the process ran to completion inside its limits.
func (r RunResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Runner abstracts the external sandboxed execution service.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (RunResult, error)
}
