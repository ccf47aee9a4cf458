package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/lib/pq"

	"connector/internal/broker"
	"connector/internal/config"
	"connector/internal/constants"
	"connector/internal/logger"
	"connector/internal/management"
	"connector/pkg/bootstrap"
	"connector/pkg/health"
	"connector/pkg/metrics"
	"connector/pkg/middleware"
	"connector/pkg/ratelimit"
	"connector/pkg/tracing"
)

type App struct {
	config         *config.Config
	logger         logger.Logger
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	producer       broker.Producer
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceNameManagement)
	}
	return &App{
		config:      cfg,
		logger:      log,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	tp, err := tracing.Init(a.config.Tracing, constants.ServiceNameManagement)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	a.initRouter(ctx)
	a.initServer()
	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db
	return nil
}

func (a *App) initRouter(ctx context.Context) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceNameManagement))
	}

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.config.Management.RateLimit.Enabled {
		rateLimitConfig := ratelimit.FromSettings(a.config.Management.RateLimit)
		router.Use(ratelimit.RateLimitMiddleware(ctx, rateLimitConfig))
		a.logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	opts := []management.ServiceOption{
		management.WithAudit(management.NewAuditRepository(a.db)),
		management.WithLanes(laneIDs(a.config.Lanes)),
		management.WithLogger(a.logger),
	}

	if a.config.Broker.Type == "kafka" && a.config.Broker.Kafka.ConfigUpdateTopic != "" {
		producer, err := broker.NewProducer(a.config.Broker, a.logger)
		if err != nil {
			a.logger.WarnwCtx(ctx, "Failed to create config event producer, config events will be disabled", "error", err)
		} else {
			a.producer = producer
			opts = append(opts, management.WithConfigEvents(management.NewConfigEventProducer(producer, a.config.Broker.Kafka.ConfigUpdateTopic)))
			a.logger.InfowCtx(ctx, "Config event producer initialized")
		}
	}

	svc := management.NewService(management.NewRepository(a.db), opts...)
	management.NewHandler(svc, a.logger).RegisterRoutes(router)

	metrics.RegisterManagementMetrics()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	router.GET("/health", gin.WrapH(healthRegistry))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
}

func laneIDs(lanes []config.LaneConfig) []string {
	ids := make([]string, len(lanes))
	for i, lane := range lanes {
		ids[i] = lane.ID
	}
	return ids
}

func (a *App) initServer() {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: a.config.Server.WriteTimeoutSeconds * time.Second,
	}
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		a.logger.InfowCtx(ctx, "Server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	errs = append(errs, a.dbConnector.ShutdownDatabases(shutdownCtx, nil, a.db, nil)...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.InfowCtx(ctx, "Server exited successfully")
	return nil
}
