// Package condition parses and evaluates migration guard expressions of the
// form "<table|column|view|index> <name> [not] exists" against live schema
// metadata.
package condition

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCondition is returned for malformed expressions. It is a
// configuration error and never worth retrying.
var ErrInvalidCondition = errors.New("invalid condition")

// Inspector answers existence questions about schema objects.
type Inspector interface {
	TableExists(ctx context.Context, table string) (bool, error)
	ViewExists(ctx context.Context, view string) (bool, error)
	IndexExists(ctx context.Context, index string) (bool, error)
	ColumnExists(ctx context.Context, table, column string) (bool, error)
}

// ObjectType is the kind of schema object a condition refers to.
type ObjectType int

const (
	Table ObjectType = iota
	Column
	View
	Index
)

func (t ObjectType) String() string {
	switch t {
	case Table:
		return "table"
	case Column:
		return "column"
	case View:
		return "view"
	case Index:
		return "index"
	}
	return fmt.Sprintf("ObjectType(%d)", int(t))
}

// Operator is the existence test applied to the referenced object.
type Operator int

const (
	Exists Operator = iota
	NotExists
)

func (o Operator) String() string {
	if o == NotExists {
		return "not exists"
	}
	return "exists"
}

// Condition is a compiled guard expression. The zero value is the empty
// condition, which always evaluates to true.
type Condition struct {
	Object   ObjectType
	Name     string
	Table    string
	Column   string
	Operator Operator

	empty bool
}

// Parse compiles a condition expression. An empty or blank text yields the
// empty condition.
func Parse(text string) (*Condition, error) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return &Condition{empty: true}, nil
	}

	if len(tokens) != 3 && len(tokens) != 4 {
		return nil, fmt.Errorf("%w: %q: expected \"<type> <name> [not] exists\"", ErrInvalidCondition, text)
	}

	c := &Condition{Name: tokens[1]}

	switch strings.ToLower(tokens[0]) {
	case "table":
		c.Object = Table
	case "column":
		c.Object = Column
		parts := strings.Split(tokens[1], ".")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("%w: %q: column reference must be TABLE.COLUMN", ErrInvalidCondition, text)
		}
		c.Table, c.Column = parts[0], parts[1]
	case "view":
		c.Object = View
	case "index":
		c.Object = Index
	default:
		return nil, fmt.Errorf("%w: %q: unknown object type %q", ErrInvalidCondition, text, tokens[0])
	}

	operator := strings.ToLower(strings.Join(tokens[2:], " "))
	switch operator {
	case "exists":
		c.Operator = Exists
	case "not exists":
		c.Operator = NotExists
	default:
		return nil, fmt.Errorf("%w: %q: unknown operator %q", ErrInvalidCondition, text, operator)
	}

	return c, nil
}

// MustParse is like Parse but panics on error.
func MustParse(text string) *Condition {
	c, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return c
}

// IsEmpty reports whether the condition carries no guard at all.
func (c *Condition) IsEmpty() bool {
	return c == nil || c.empty
}

// Evaluate resolves the referenced object against the inspector and applies
// the operator. The empty condition is always true.
func (c *Condition) Evaluate(ctx context.Context, inspector Inspector) (bool, error) {
	if c.IsEmpty() {
		return true, nil
	}

	exists, err := c.resolve(ctx, inspector)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate %q: %w", c.String(), err)
	}

	if c.Operator == NotExists {
		return !exists, nil
	}
	return exists, nil
}

// resolve reports whether the referenced object exists. A column whose table
// is missing resolves to a non-existent column instead of an error.
func (c *Condition) resolve(ctx context.Context, inspector Inspector) (bool, error) {
	switch c.Object {
	case Table:
		return inspector.TableExists(ctx, c.Name)
	case View:
		return inspector.ViewExists(ctx, c.Name)
	case Index:
		return inspector.IndexExists(ctx, c.Name)
	case Column:
		tableExists, err := inspector.TableExists(ctx, c.Table)
		if err != nil {
			return false, err
		}
		if !tableExists {
			return false, nil
		}
		return inspector.ColumnExists(ctx, c.Table, c.Column)
	}
	return false, fmt.Errorf("%w: unknown object type %s", ErrInvalidCondition, c.Object)
}

// String renders the canonical form of the condition.
func (c *Condition) String() string {
	if c.IsEmpty() {
		return ""
	}
	return fmt.Sprintf("%s %s %s", c.Object, c.Name, c.Operator)
}

// Evaluate parses and evaluates text in one step.
func Evaluate(ctx context.Context, text string, inspector Inspector) (bool, error) {
	c, err := Parse(text)
	if err != nil {
		return false, err
	}
	return c.Evaluate(ctx, inspector)
}
