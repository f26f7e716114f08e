package executor

import (
	"context"
	"encoding/json"
)

// Context keys for execution metadata
type contextKey string

const (
	executedByKey       contextKey = "executed_by"
	executionMethodKey  contextKey = "execution_method"
	executionContextKey contextKey = "execution_context"
)

// SetExecutionContext sets execution context in the context
func SetExecutionContext(ctx context.Context, executedBy, executionMethod string, executionContext map[string]interface{}) context.Context {
	ctx = context.WithValue(ctx, executedByKey, executedBy)
	ctx = context.WithValue(ctx, executionMethodKey, executionMethod)
	if executionContext != nil {
		ctxBytes, _ := json.Marshal(executionContext)
		ctx = context.WithValue(ctx, executionContextKey, string(ctxBytes))
	}
	return ctx
}

// GetExecutionContext extracts execution context from context
func GetExecutionContext(ctx context.Context) (executedBy, executionMethod, executionContext string) {
	executedBy = "system"
	executionMethod = "api"

	if s, ok := ctx.Value(executedByKey).(string); ok && s != "" {
		executedBy = s
	}
	if s, ok := ctx.Value(executionMethodKey).(string); ok && s != "" {
		executionMethod = s
	}
	if s, ok := ctx.Value(executionContextKey).(string); ok {
		executionContext = s
	}
	return executedBy, executionMethod, executionContext
}

// executedBy is the value stored in the registry executed_by column
func executedBy(ctx context.Context) string {
	by, method, _ := GetExecutionContext(ctx)
	return by + " (" + method + ")"
}
