package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"connector/internal/broker"
	"connector/internal/config"
	"connector/internal/constants"
	"connector/internal/container"
	"connector/internal/deduplication"
	"connector/internal/evidence"
	"connector/internal/logger"
	"connector/internal/persistence"
	"connector/internal/pmode"
	"connector/internal/processor"
	"connector/internal/routing"
	"connector/internal/transport"
	"connector/pkg/bootstrap"
	"connector/pkg/health"
	"connector/pkg/logging"
	"connector/pkg/metrics"
	"connector/pkg/migrations"
	"connector/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redisClient    *redisclient.Client
	mongoClient    *mongo.Client
	gridfs         *persistence.GridFSContentStore
	store          persistence.TxStore
	router         *routing.Service
	guard          *deduplication.Guard
	dispatcher     *processor.Dispatcher
	tracerProvider *tracing.TracerProvider
	server         *http.Server
	health         *health.CheckerRegistry
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceNameConnector)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
		health:      health.NewCheckerRegistry(),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceNameConnector)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	if err := a.initStore(ctx); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	if err := a.InitBroker(constants.ServiceNameConnector); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}
	a.health.RegisterOptional(health.NewKafkaChecker(a.Config.Broker.Kafka.Brokers))

	if err := a.initGuard(ctx); err != nil {
		return fmt.Errorf("failed to initialize evidence guard: %w", err)
	}

	if err := a.initProcessors(ctx); err != nil {
		return fmt.Errorf("failed to initialize processors: %w", err)
	}

	metrics.RegisterProcessorMetrics()
	metrics.RegisterRoutingMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	a.initHTTPServer()
	return nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.Config.Database.Store == constants.StoreMemory {
		a.Logger.WarnwCtx(ctx, "Using in-memory message store, messages are lost on restart")
		a.store = persistence.NewMemoryStore()
		return nil
	}

	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db
	a.health.Register(health.NewPostgreSQLChecker(db))

	if a.Config.Database.RunMigrations {
		if err := migrations.UpPostgres(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	var content persistence.ContentStore
	if a.Config.Database.ContentStore == constants.ContentStoreMongoDB {
		client, err := a.dbConnector.InitMongoDB(ctx)
		if err != nil {
			return err
		}
		a.mongoClient = client
		a.health.Register(health.NewMongoDBChecker(client))

		mongoDB := client.Database(a.Config.Database.MongoDB.Database)
		bucket := a.Config.Database.MongoDB.BucketName
		if err := migrations.EnsureContentBucket(ctx, mongoDB, bucket); err != nil {
			return err
		}
		a.gridfs, err = persistence.NewGridFSContentStore(mongoDB, bucket)
		if err != nil {
			return err
		}
		content = a.gridfs
	}

	a.store = persistence.NewPostgresStore(db, content, a.Logger)
	return nil
}

func (a *App) initGuard(ctx context.Context) error {
	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	if rdb == nil {
		return nil
	}
	a.redisClient = rdb
	a.health.RegisterOptional(health.NewRedisChecker(rdb))

	repo := deduplication.NewCircuitBreakerRepository(deduplication.NewRepository(rdb), a.Config.CircuitBreaker)
	a.guard = deduplication.NewGuard(repo, a.Config.Deduplication, a.Logger)
	return nil
}

func (a *App) initProcessors(ctx context.Context) error {
	signer, err := evidence.NewSigner(a.Config.Evidence, a.Config.CircuitBreaker, a.Logger)
	if err != nil {
		return err
	}
	builder, err := evidence.NewBuilder(a.Config.Evidence, signer, a.Logger)
	if err != nil {
		return err
	}

	verifier, err := pmode.NewVerifier(a.Config.Lanes, a.Logger)
	if err != nil {
		return err
	}

	containers, err := container.NewService(a.Config.Container, a.Config.CircuitBreaker, a.Logger)
	if err != nil {
		return err
	}

	var rules routing.Repository = &routing.StaticRepository{}
	if a.db != nil {
		rules = routing.NewRepository(a.db)
	}
	a.router = routing.NewService(rules, a.Config.Routing, a.Config.Lanes, a.Logger)
	if err := a.router.ReloadRules(ctx, true); err != nil {
		// routing-enabled lanes refuse messages until a reload succeeds
		a.Logger.ErrorwCtx(ctx, "Failed to load initial routing rules", "error", err)
	}

	var submitter transport.Submitter = transport.NewKafkaSubmitter(a.Producer, a.Config.Broker.Kafka, a.Logger)
	if a.Config.CircuitBreaker.Enabled {
		submitter = transport.NewCircuitBreakerSubmitter(submitter, a.Config.CircuitBreaker)
	}

	deps := processor.Deps{
		Store:        a.store,
		Submitter:    submitter,
		Evidence:     builder,
		Router:       a.router,
		PModes:       verifier,
		Container:    containers,
		Lanes:        a.Config.Lanes,
		EbmsIDSuffix: a.Config.Processing.EbmsIDSuffix,
		Logger:       a.Logger,
	}
	if a.guard != nil {
		deps.Guard = a.guard
	}

	a.dispatcher = processor.NewDispatcher(processor.BuildRegistry(deps), a.Logger)
	return nil
}

func (a *App) initHTTPServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.health)
	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      mux,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds * time.Second,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return a.router.StartReloader(gCtx)
	})

	if topic := a.Config.Broker.Kafka.ConfigUpdateTopic; topic != "" {
		configConsumer, err := a.newConfigConsumer()
		if err != nil {
			a.Logger.WarnwCtx(ctx, "Failed to create config event consumer, event-driven reload disabled", "error", err)
		} else {
			defer configConsumer.Close()
			handler := routing.NewHandler(a.router, a.Logger)
			g.Go(func() error {
				configCtx := logging.WithServiceName(gCtx, constants.ServiceNameConnector)
				a.Logger.InfowCtx(configCtx, "Starting config update event consumer", "topic", topic)
				return configConsumer.ConsumeEvents(gCtx, topic, handler.HandleConfigUpdateEvent)
			})
		}
	}

	for linkType, topic := range broker.InputTopics(a.Config.Broker.Kafka) {
		handler := a.dispatcher.Handler(linkType)
		g.Go(func() error {
			a.Logger.InfowCtx(gCtx, "Consuming link topic", "topic", topic, "link_type", linkType)
			return a.Consumer.Consume(gCtx, topic, handler)
		})
	}

	return g.Wait()
}

// newConfigConsumer reads config update events in a group of its own so
// every connector instance reloads its rules.
func (a *App) newConfigConsumer() (broker.Consumer, error) {
	host, _ := os.Hostname()
	instance := fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	return broker.NewEventConsumer(a.Config.Broker, constants.ServiceNameConnector, instance, a.Logger)
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, constants.ServiceNameConnector)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down connector")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		a.guard.Stop()

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		if a.gridfs != nil {
			a.gridfs.Close()
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redisClient, a.db, a.mongoClient)...)
		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
