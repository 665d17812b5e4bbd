package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	agentadapter "github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/adapters/agent"
	eventadapter "github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/adapters/events"
	grpcadapter "github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/adapters/grpc"
	httpadapter "github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/adapters/http"
	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/adapters/stream"
	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/application"
	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/domain"
	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	relayWork  *eventadapter.RelayWorker
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping m72 workitem service", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := pool.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := stream.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	repos := postgres.NewRepositories(pool)

	var sink ports.EventSink
	var closeSink func() error
	switch cfg.SinkKind {
	case "kafka":
		kafkaSink, err := stream.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, nil)
		if err != nil {
			_ = sqlDB.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("init kafka sink: %w", err)
		}
		sink = kafkaSink
		closeSink = kafkaSink.Close
	default:
		sink = stream.NewRedisStreamSink(redisClient, cfg.StreamName)
	}
	dlq := stream.NewRedisDeadLetterStream(redisClient)

	contracts := domain.NewContractRegistry(application.DefaultContracts(cfg.ServiceID)...)
	publisherMetrics := &application.PublisherMetrics{}
	verifyMetrics := &application.VerificationMetrics{}
	relayMetrics := &application.RelayMetrics{}

	publisher := application.NewEventPublisher(contracts, publisherMetrics, logger)
	harness := application.NewSelfVerificationHarness(cfg.SelfVerifySampleRatio, cfg.SelfVerifyConfidenceLimit, verifyMetrics)
	bus := application.NewEventBus(logger)
	agentBreaker := application.NewCircuitBreaker(cfg.AgentBreakerFailureThreshold, cfg.AgentBreakerCooldown)
	sinkBreaker := application.NewCircuitBreaker(cfg.SinkBreakerFailureThreshold, cfg.SinkBreakerCooldown)

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			OwnerService:        cfg.ServiceID,
			SampleRatio:         cfg.SelfVerifySampleRatio,
			ConfidenceThreshold: cfg.SelfVerifyConfidenceLimit,
		},
		Items:        repos.WorkItems,
		Procs:        repos.ProcessInstances,
		Publisher:    publisher,
		Harness:      harness,
		Bus:          bus,
		Agent:        agentadapter.NewLoggingExecutor(logger),
		AgentBreaker: agentBreaker,
		Logger:       logger,
	})

	relay := application.NewRelayService(
		repos.Outbox,
		sink,
		dlq,
		sinkBreaker,
		application.RelayConfig{
			MaxRetries: cfg.OutboxMaxRetries,
			ClaimTTL:   cfg.OutboxClaimTTL,
			DLQStream:  cfg.DLQStream,
		},
		relayMetrics,
		logger,
	)

	handler := httpadapter.NewHandler(svc, relay)
	router := httpadapter.NewRouter(handler)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcadapter.Register(grpcServer, grpcadapter.NewWorkItemInternalServer(svc, relay))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}

	relayWork := eventadapter.NewRelayWorker(
		logger,
		relay,
		cfg.OutboxPollInterval,
		cfg.OutboxBatchSize,
		cfg.OutboxRetryEvery,
	)

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		relayWork:  relayWork,
		cleanupFn: func(ctx context.Context) {
			if closeSink != nil {
				_ = closeSink()
			}
			_ = redisClient.Close()
			_ = sqlDB.Close()
		},
	}, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("outbox relay worker started")
	err := r.relayWork.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	return nil
}
