package dto

import (
	"time"

	"github.com/toolsascode/schemaflow/internal/executor"
	"github.com/toolsascode/schemaflow/internal/state"
)

// HistoryFilters specifies filters for the registry history
type HistoryFilters struct {
	ID     string `form:"id"`
	Module string `form:"module"`
	Status string `form:"status"`
	RunID  string `form:"run_id"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// RecordResponse is one registry row
type RecordResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Module     string `json:"module"`
	Path       string `json:"path"`
	AppliedAt  string `json:"applied_at"`
	DurationMs int64  `json:"duration_ms"`
	Status     string `json:"status"`
	Checksum   string `json:"checksum,omitempty"`
	Log        string `json:"log,omitempty"`
	RunID      string `json:"run_id,omitempty"`
	ExecutedBy string `json:"executed_by,omitempty"`
}

// HistoryResponse represents a list of registry rows, newest first
type HistoryResponse struct {
	Items []RecordResponse `json:"items"`
	Total int              `json:"total"`
}

// StatusResponse is the latest state of one definition or migration
type StatusResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Last   *RecordResponse `json:"last,omitempty"`
}

// PlanMigration is one migration in a plan
type PlanMigration struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	Condition string `json:"condition,omitempty"`
	Status    string `json:"status"`
	Action    string `json:"action"`
}

// PlanDefinition is one definition in a plan
type PlanDefinition struct {
	ID         string          `json:"id"`
	Module     string          `json:"module"`
	Name       string          `json:"name"`
	Path       string          `json:"path"`
	Order      int             `json:"order"`
	Tables     []string        `json:"tables,omitempty"`
	Applied    bool            `json:"applied"`
	Status     string          `json:"status"`
	Action     string          `json:"action"`
	Migrations []PlanMigration `json:"migrations"`
}

// PlanResponse previews the next run
type PlanResponse struct {
	Definitions []PlanDefinition `json:"definitions"`
	Pending     int              `json:"pending"`
	LoadErrors  []string         `json:"load_errors,omitempty"`
}

// ToFilters converts query filters for the registry
func (f *HistoryFilters) ToFilters() (*state.Filters, error) {
	filters := &state.Filters{
		ID:     f.ID,
		Module: f.Module,
		RunID:  f.RunID,
		Limit:  f.Limit,
	}
	if f.Status != "" {
		status, err := state.ParseStatus(f.Status)
		if err != nil {
			return nil, err
		}
		filters.Status = status
	}
	return filters, nil
}

// FromRecord converts a registry row
func FromRecord(r *state.Record) RecordResponse {
	return RecordResponse{
		ID:         r.ID,
		Name:       r.Name,
		Module:     r.Module,
		Path:       r.Path,
		AppliedAt:  r.AppliedAt.UTC().Format(time.RFC3339),
		DurationMs: r.DurationMs,
		Status:     string(r.Status),
		Checksum:   r.Checksum,
		Log:        r.Log,
		RunID:      r.RunID,
		ExecutedBy: r.ExecutedBy,
	}
}

// FromRecords converts registry rows
func FromRecords(records []*state.Record) HistoryResponse {
	items := make([]RecordResponse, 0, len(records))
	for _, r := range records {
		items = append(items, FromRecord(r))
	}
	return HistoryResponse{Items: items, Total: len(items)}
}

// FromStatus converts a status lookup
func FromStatus(s *executor.StatusResult) StatusResponse {
	resp := StatusResponse{ID: s.ID, Status: string(s.Status)}
	if s.Last != nil {
		last := FromRecord(s.Last)
		resp.Last = &last
	}
	return resp
}

// FromPlan converts a plan
func FromPlan(plan *executor.Plan) PlanResponse {
	resp := PlanResponse{
		Definitions: make([]PlanDefinition, 0, len(plan.Definitions)),
		Pending:     plan.Pending(),
		LoadErrors:  plan.LoadErrors,
	}
	for _, d := range plan.Definitions {
		pd := PlanDefinition{
			ID:         d.ID,
			Module:     d.Module,
			Name:       d.Name,
			Path:       d.Path,
			Order:      d.Order,
			Tables:     d.Tables,
			Applied:    d.Applied,
			Status:     string(d.Status),
			Action:     string(d.Action),
			Migrations: make([]PlanMigration, 0, len(d.Migrations)),
		}
		for _, m := range d.Migrations {
			pd.Migrations = append(pd.Migrations, PlanMigration{
				ID:        m.ID,
				Path:      m.Path,
				Condition: m.Condition,
				Status:    string(m.Status),
				Action:    string(m.Action),
			})
		}
		resp.Definitions = append(resp.Definitions, pd)
	}
	return resp
}
