// Package grpchealth publishes the executor's health through the standard
// gRPC health checking protocol.
package grpchealth

import (
	"context"
	"time"

	"github.com/toolsascode/schemaflow/internal/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the service name reported alongside the server-wide status
const ServiceName = "schemaflow.Migrator"

// Checker reports whether the target database and registry are usable
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Monitor polls a Checker and mirrors the result into a health server
type Monitor struct {
	server   *health.Server
	checker  Checker
	interval time.Duration
	timeout  time.Duration
}

// NewMonitor creates a monitor. Status is NOT_SERVING until the first check.
func NewMonitor(checker Checker, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	m := &Monitor{
		server:   health.NewServer(),
		checker:  checker,
		interval: interval,
		timeout:  5 * time.Second,
	}
	m.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return m
}

// Register adds the health service to s
func (m *Monitor) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, m.server)
}

// Check runs one health check and publishes the result
func (m *Monitor) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.checker.HealthCheck(ctx); err != nil {
		logger.Warnf("Health check failed: %v", err)
		m.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	}
	m.set(healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Run checks on every tick until ctx is done, then marks the server as
// shutting down
func (m *Monitor) Run(ctx context.Context) {
	_ = m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.server.Shutdown()
			return
		case <-ticker.C:
			_ = m.Check(ctx)
		}
	}
}

func (m *Monitor) set(status healthpb.HealthCheckResponse_ServingStatus) {
	m.server.SetServingStatus("", status)
	m.server.SetServingStatus(ServiceName, status)
}
