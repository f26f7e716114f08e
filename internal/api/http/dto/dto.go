package dto

import (
	"github.com/toolsascode/schemaflow/internal/executor"
)

// MigrateRequest represents a migration run request. Every field is optional.
type MigrateRequest struct {
	FailOnError   *bool  `json:"fail_on_error"`
	AppliedPolicy string `json:"applied_policy" binding:"omitempty,oneof=any all"`
}

// MigrateResponse represents a migration response
type MigrateResponse struct {
	RunID                string   `json:"run_id,omitempty"`
	JobID                string   `json:"job_id,omitempty"`
	Queued               bool     `json:"queued"`
	Success              bool     `json:"success"`
	Status               string   `json:"status"`
	Phase                string   `json:"phase,omitempty"`
	ScriptCount          int      `json:"script_count"`
	StatementCount       int      `json:"statement_count"`
	FailedStatementCount int      `json:"failed_statement_count"`
	Log                  []string `json:"log,omitempty"`
	Errors               []string `json:"errors"`
}

// CheckRequest asks whether a condition holds against the live schema
type CheckRequest struct {
	Condition string `json:"condition" binding:"required"`
}

// CheckResponse is the outcome of a condition check
type CheckResponse struct {
	Condition string `json:"condition"`
	Holds     bool   `json:"holds"`
}

// FromRunResult converts an executor result
func FromRunResult(result *executor.RunResult) MigrateResponse {
	errs := result.Errors
	if errs == nil {
		errs = []string{}
	}
	return MigrateResponse{
		RunID:                result.RunID,
		JobID:                result.JobID,
		Queued:               result.Queued,
		Success:              result.Success,
		Status:               string(result.Status),
		Phase:                result.Phase,
		ScriptCount:          result.ScriptCount,
		StatementCount:       result.StatementCount,
		FailedStatementCount: result.FailedStatementCount,
		Log:                  result.Log,
		Errors:               errs,
	}
}
