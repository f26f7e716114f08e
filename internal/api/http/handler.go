package http

import (
	"context"
	_ "embed"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/toolsascode/schemaflow/internal/api/http/dto"
	"github.com/toolsascode/schemaflow/internal/auth"
	"github.com/toolsascode/schemaflow/internal/condition"
	"github.com/toolsascode/schemaflow/internal/executor"
	"github.com/toolsascode/schemaflow/internal/logger"
	"github.com/toolsascode/schemaflow/internal/state"
	"gopkg.in/yaml.v3"
)

// Service is the executor surface the API exposes
type Service interface {
	Execute(ctx context.Context, req *executor.RunRequest) (*executor.RunResult, error)
	Plan(ctx context.Context, filter string) (*executor.Plan, error)
	History(ctx context.Context, filters *state.Filters) ([]*state.Record, error)
	Status(ctx context.Context, id string) (*executor.StatusResult, error)
	CheckCondition(ctx context.Context, expression string) (bool, error)
	HealthCheck(ctx context.Context) error
}

// Handler handles HTTP API requests
type Handler struct {
	service Service
	tokens  *auth.TokenValidator
}

// NewHandler creates a new HTTP handler
func NewHandler(service Service, tokens *auth.TokenValidator) *Handler {
	return &Handler{
		service: service,
		tokens:  tokens,
	}
}

// RegisterRoutes registers HTTP routes
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		// Handle OPTIONS for all routes
		api.OPTIONS("/*path", func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})

		api.POST("/migrate", h.authenticate, h.migrate)
		api.GET("/plan", h.authenticate, h.plan)
		api.GET("/history", h.authenticate, h.history)
		api.GET("/status/:id", h.authenticate, h.status)
		api.POST("/check", h.authenticate, h.check)
		api.GET("/health", h.Health)
		api.GET("/openapi.yaml", h.OpenAPISpec)
		api.GET("/openapi.json", h.OpenAPISpecJSON)
	}
}

// authenticate middleware validates API token
func (h *Handler) authenticate(c *gin.Context) {
	if err := h.tokens.ValidateHeader(c.GetHeader("Authorization")); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		c.Abort()
		return
	}

	c.Next()
}

// isManualExecution checks if the request comes from a browser rather than
// an automated client
func (h *Handler) isManualExecution(c *gin.Context) bool {
	switch c.GetHeader("X-Client-Type") {
	case "frontend", "browser":
		return true
	}
	if c.GetHeader("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	return c.GetHeader("Origin") != ""
}

// setExecutionContext sets execution context in the request context
func (h *Handler) setExecutionContext(c *gin.Context) context.Context {
	executedBy, executionMethod := "api_user", "api"
	if h.isManualExecution(c) {
		executedBy, executionMethod = "frontend_user", "manual"
	}
	if user := strings.TrimSpace(c.GetHeader("X-Executed-By")); user != "" {
		executedBy = user
	}

	executionContext := map[string]interface{}{
		"endpoint":   c.Request.URL.Path,
		"method":     c.Request.Method,
		"client_ip":  c.ClientIP(),
		"user_agent": c.Request.UserAgent(),
	}

	return executor.SetExecutionContext(c.Request.Context(), executedBy, executionMethod, executionContext)
}

// migrate starts a run, or queues one when the executor has a queue
func (h *Handler) migrate(c *gin.Context) {
	var req dto.MigrateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	ctx := h.setExecutionContext(c)
	result, err := h.service.Execute(ctx, &executor.RunRequest{
		FailOnError:   req.FailOnError,
		AppliedPolicy: req.AppliedPolicy,
	})
	if err != nil && result == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	statusCode := http.StatusOK
	switch {
	case err != nil:
		logger.Errorf("Migration run %s failed: %v", result.RunID, err)
		statusCode = http.StatusInternalServerError
	case result.Queued:
		statusCode = http.StatusAccepted
	case !result.Success:
		statusCode = http.StatusPartialContent
	}

	c.JSON(statusCode, dto.FromRunResult(result))
}

// plan previews the next run
func (h *Handler) plan(c *gin.Context) {
	plan, err := h.service.Plan(c.Request.Context(), c.Query("filter"))
	if err != nil {
		c.JSON(conditionErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.FromPlan(plan))
}

// history lists registry rows, newest first
func (h *Handler) history(c *gin.Context) {
	var query dto.HistoryFilters
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filters, err := query.ToFilters()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, err := h.service.History(c.Request.Context(), filters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.FromRecords(records))
}

// status returns the latest registry row of a definition or migration
func (h *Handler) status(c *gin.Context) {
	result, err := h.service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if result.Last == nil {
		c.JSON(http.StatusNotFound, dto.FromStatus(result))
		return
	}
	c.JSON(http.StatusOK, dto.FromStatus(result))
}

// check evaluates a condition against the live schema
func (h *Handler) check(c *gin.Context) {
	var req dto.CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	holds, err := h.service.CheckCondition(c.Request.Context(), req.Condition)
	if err != nil {
		c.JSON(conditionErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.CheckResponse{Condition: req.Condition, Holds: holds})
}

// conditionErrorStatus maps invalid condition expressions to 400, anything
// else to 500
func conditionErrorStatus(err error) int {
	if errors.Is(err, condition.ErrInvalidCondition) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Health handles health check requests
func (h *Handler) Health(c *gin.Context) {
	checks := gin.H{}
	healthStatus := gin.H{
		"status": "healthy",
		"checks": checks,
	}

	statusCode := http.StatusOK
	if err := h.service.HealthCheck(c.Request.Context()); err != nil {
		healthStatus["status"] = "unhealthy"
		checks["executor"] = err.Error()
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["executor"] = "ok"
	}

	c.JSON(statusCode, healthStatus)
}

//go:embed openapi.yaml
var openAPISpecYAML []byte

// OpenAPISpec serves the OpenAPI specification in YAML format
func (h *Handler) OpenAPISpec(c *gin.Context) {
	c.Data(http.StatusOK, "application/x-yaml", openAPISpecYAML)
}

// OpenAPISpecJSON serves the OpenAPI specification in JSON format
func (h *Handler) OpenAPISpecJSON(c *gin.Context) {
	var spec map[string]interface{}
	if err := yaml.Unmarshal(openAPISpecYAML, &spec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to parse OpenAPI spec"})
		return
	}
	c.JSON(http.StatusOK, spec)
}
