package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/toolsascode/schemaflow/internal/api/grpchealth"
	httpapi "github.com/toolsascode/schemaflow/internal/api/http"
	"github.com/toolsascode/schemaflow/internal/auth"
	"github.com/toolsascode/schemaflow/internal/config"
	"github.com/toolsascode/schemaflow/internal/dbfactory"
	"github.com/toolsascode/schemaflow/internal/logger"
	"github.com/toolsascode/schemaflow/internal/queuefactory"
	"google.golang.org/grpc"
)

func main() {
	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	logger.Info("Initializing schemaflow server...")

	res, err := dbfactory.Open(cfg)
	if err != nil {
		logger.Fatalf("Failed to open target database: %v", err)
	}
	defer func() { _ = res.Close() }()

	if err := res.Tracker.Initialize(context.Background()); err != nil {
		logger.Fatalf("Failed to initialize registry: %v", err)
	}

	exec := dbfactory.NewExecutor(cfg, res)

	// Initialize queue if enabled
	if cfg.Queue.Enabled {
		q, err := queuefactory.NewQueue(queuefactory.FromConfig(cfg.Queue))
		if err != nil {
			logger.Fatalf("Failed to create queue: %v", err)
		}
		defer func() { _ = q.Close() }()

		exec.SetQueue(q)
		logger.Info("Queue enabled - runs will be queued for the worker")
	}

	// Initialize HTTP server
	router := gin.New()

	// Custom logger middleware that skips health check endpoints
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		if param.Path == "/health" || param.Path == "/api/v1/health" {
			return ""
		}
		return fmt.Sprintf("[GIN] %s | %3d | %13v | %15s | %-7s %s\n",
			param.TimeStamp.Format("2006/01/02 - 15:04:05"),
			param.StatusCode,
			param.Latency,
			param.ClientIP,
			param.Method,
			param.Path,
		)
	}))
	router.Use(gin.Recovery())

	// CORS must be registered before routes
	router.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Client-Type, X-Executed-By")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	httpHandler := httpapi.NewHandler(exec, auth.NewTokenValidator(cfg.Server.APIToken))
	httpHandler.RegisterRoutes(router)
	router.GET("/health", httpHandler.Health)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting HTTP server on port %s", cfg.Server.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// gRPC serves the standard health protocol
	grpcServer := grpc.NewServer()
	monitor := grpchealth.NewMonitor(exec, 15*time.Second)
	monitor.Register(grpcServer)

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go monitor.Run(monitorCtx)

	grpcListener, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		logger.Fatalf("Failed to listen on gRPC port %s: %v", cfg.Server.GRPCPort, err)
	}

	go func() {
		logger.Infof("Starting gRPC server on port %s", cfg.Server.GRPCPort)
		if err := grpcServer.Serve(grpcListener); err != nil {
			logger.Fatalf("Failed to start gRPC server: %v", err)
		}
	}()

	logger.Info("schemaflow server started successfully")
	logger.Infof("HTTP API available at http://localhost:%s/api/v1", cfg.Server.HTTPPort)
	logger.Infof("gRPC health available at localhost:%s", cfg.Server.GRPCPort)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down servers...")
	stopMonitor()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warnf("HTTP server forced to shutdown: %v", err)
	}

	grpcServer.GracefulStop()

	logger.Info("Servers exited")
}
