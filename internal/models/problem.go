package models

import "time"

// Problem represents a coding-lab exercise graded against hidden test cases.
// Problem definitions are owned by the catalog service; this core only reads them.
type Problem struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	LabID         string     `gorm:"size:64;index;not null" json:"lab_id"`
	Title         string     `gorm:"size:255;not null" json:"title"`
	Statement     string     `gorm:"type:text" json:"statement"`
	TimeLimitSec  int        `gorm:"default:5" json:"time_limit_sec"`
	MemoryLimitMB int        `gorm:"default:256" json:"memory_limit_mb"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	TestCases     []TestCase `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"test_cases,omitempty"`
}

// TestCase is an (input, expected output) pair with a point value.
// Per-case limits, when set, override the problem defaults.
type TestCase struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ProblemID      uint      `gorm:"not null;index" json:"problem_id"`
	Input          string    `gorm:"type:text" json:"input"`
	ExpectedOutput string    `gorm:"type:text" json:"expected_output"`
	Points         int       `gorm:"default:10" json:"points"`
	TimeLimitSec   int       `gorm:"default:0" json:"time_limit_sec"`
	MemoryLimitMB  int       `gorm:"default:0" json:"memory_limit_mb"`
	OrderIndex     int       `gorm:"default:0;index" json:"order_index"`
	Hidden         bool      `gorm:"default:true" json:"hidden"`
	CreatedAt      time.Time `json:"created_at"`
}

// EffectiveTimeLimit returns the per-case time limit, falling back to the problem default.
func (t TestCase) EffectiveTimeLimit(problem Problem) int {
	if t.TimeLimitSec > 0 {
		return t.TimeLimitSec
	}
	if problem.TimeLimitSec > 0 {
		return problem.TimeLimitSec
	}
	return 5
}

// EffectiveMemoryLimit returns the per-case memory limit, falling back to the problem default.
func (t TestCase) EffectiveMemoryLimit(problem Problem) int {
	if t.MemoryLimitMB > 0 {
		return t.MemoryLimitMB
	}
	if problem.MemoryLimitMB > 0 {
		return problem.MemoryLimitMB
	}
	return 256
}
