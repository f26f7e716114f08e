package state

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultTable is the registry table name used when none is configured
const DefaultTable = "schema_registry"

// Status is the outcome recorded for one script execution
type Status string

const (
	StatusNA         Status = "NA"
	StatusSuccessful Status = "SUCCESSFUL"
	StatusFailed     Status = "FAILED"
	StatusApplied    Status = "APPLIED"
)

// Done reports whether a script with this status must not run again
func (s Status) Done() bool {
	return s == StatusSuccessful || s == StatusApplied
}

// ParseStatus parses a status name, case-insensitively
func ParseStatus(value string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(value))); s {
	case StatusNA, StatusSuccessful, StatusFailed, StatusApplied:
		return s, nil
	}
	return "", fmt.Errorf("unknown status %q", value)
}

// Record is one registry row. Rows are append-only: every script execution
// (or APPLIED bookkeeping entry) adds a new row keyed by the migration's or
// definition's id.
type Record struct {
	ID         string
	Name       string
	Module     string
	Path       string
	AppliedAt  time.Time
	DurationMs int64
	Status     Status
	Checksum   string
	Log        string
	RunID      string
	ExecutedBy string
}

// Filters narrows History queries. Zero values match everything.
type Filters struct {
	ID     string
	Module string
	Status Status
	RunID  string
	Limit  int
}

// Tracker persists the execution registry
type Tracker interface {
	// Initialize creates the registry table and its indexes if missing
	Initialize(ctx context.Context) error

	// Record appends a registry row
	Record(ctx context.Context, record *Record) error

	// LastStatus returns the status of the newest row for id, or StatusNA
	LastStatus(ctx context.Context, id string) (Status, error)

	// History returns matching rows, newest first
	History(ctx context.Context, filters *Filters) ([]*Record, error)

	// Close releases resources owned by the tracker
	Close() error
}

// Where renders the filters as a SQL condition list (starting with
// "WHERE 1=1") using placeholder to format the n-th bind parameter.
func (f *Filters) Where(placeholder func(n int) string) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)
	b.WriteString(" WHERE 1=1")

	add := func(column string, value any) {
		args = append(args, value)
		fmt.Fprintf(&b, " AND %s = %s", column, placeholder(len(args)))
	}

	if f != nil {
		if f.ID != "" {
			add("id", f.ID)
		}
		if f.Module != "" {
			add("module", f.Module)
		}
		if f.Status != "" {
			add("status", string(f.Status))
		}
		if f.RunID != "" {
			add("run_id", f.RunID)
		}
	}

	return b.String(), args
}

// LimitClause renders a LIMIT clause, or an empty string when unbounded
func (f *Filters) LimitClause() string {
	if f == nil || f.Limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", f.Limit)
}
