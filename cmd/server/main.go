package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/farunova-art/farunova-sub001/internal/config"
	"github.com/farunova-art/farunova-sub001/internal/infrastructure/crypto"
	"github.com/farunova-art/farunova-sub001/internal/infrastructure/database"
	grpcServer "github.com/farunova-art/farunova-sub001/internal/infrastructure/grpc"
	httpServer "github.com/farunova-art/farunova-sub001/internal/infrastructure/http"
	"github.com/farunova-art/farunova-sub001/internal/infrastructure/metrics"
	"github.com/farunova-art/farunova-sub001/internal/infrastructure/provider/mpesa"
	"github.com/farunova-art/farunova-sub001/internal/usecase"
	pkglogger "github.com/farunova-art/farunova-sub001/pkg/logger"
	"github.com/farunova-art/farunova-sub001/pkg/messaging"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := pkglogger.NewZapLogger(pkglogger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		FilePath:    cfg.Log.FilePath,
		Development: cfg.Log.Development,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database connection
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, logger); err != nil {
			logger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	if err := database.Migrate(db, logger); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}
	repos := database.NewRepositories(db, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Redis backs the shared token store and event publishing
	var redisClient *redis.Client
	if cfg.Mpesa.TokenStore == config.TokenStoreRedis || cfg.Events.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal("Failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer redisClient.Close()
	}

	var tokenStore mpesa.TokenStore = mpesa.NewMemoryTokenStore()
	if cfg.Mpesa.TokenStore == config.TokenStoreRedis {
		tokenStore = mpesa.NewRedisTokenStore(redisClient, cfg.Mpesa.TokenKey)
	}
	tokens := mpesa.NewTokenCache(cfg.Mpesa, tokenStore, nil, logger, m)

	credential, err := crypto.ResolveSecurityCredential(cfg.Mpesa.SecurityCredential, cfg.Mpesa.InitiatorPassword, cfg.Mpesa.CertificatePath)
	if err != nil {
		logger.Fatal("Failed to resolve reversal security credential", zap.Error(err))
	}
	if credential == "" {
		logger.Warn("No reversal security credential configured; refund approvals will be rejected")
	}

	gateway := mpesa.NewClient(cfg.Mpesa, tokens, logger,
		mpesa.WithMetrics(m),
		mpesa.WithSecurityCredential(credential))

	var events *usecase.EventEmitter
	if cfg.Events.Enabled {
		events = usecase.NewEventEmitter(messaging.NewRedisClientFromClient(redisClient), cfg.Events.ChannelPrefix, logger)
	}

	ledger := usecase.NewPaymentLedger(repos.Payment, gateway, events, m, logger)
	callbacks := usecase.NewCallbackProcessor(ledger, repos.Payment, repos.GatewayTransaction, repos.CallbackEvent, m, logger)
	refunds := usecase.NewRefundWorkflow(repos.Refund, repos.Payment, gateway, repos.CallbackEvent, events, m, logger)
	engine := usecase.NewReconciliationEngine(repos.Payment, repos.Reconciliation,
		usecase.NewStoredTransactionSource(repos.GatewayTransaction), events, m, logger)

	// Background workers stop with ctx
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Poller.Enabled {
		poller := usecase.NewStatusPoller(repos.Payment, ledger, cfg.Poller, logger)
		go poller.Run(ctx)
	}
	if cfg.Reconciliation.Enabled {
		go engine.RunPeriodic(ctx, cfg.Reconciliation.Interval, cfg.Reconciliation.Lookback)
	}

	// Initialize servers
	grpcSrv := grpcServer.NewServer(cfg, logger)
	httpSrv := httpServer.NewServer(cfg, logger, httpServer.Usecases{
		Ledger:         ledger,
		Callbacks:      callbacks,
		Refunds:        refunds,
		Reconciliation: engine,
	}, registry)

	go func() {
		if err := grpcSrv.Start(); err != nil {
			logger.Fatal("Failed to start gRPC server", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.Start(); err != nil {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down servers...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	if err := grpcSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown gRPC server", zap.Error(err))
	}

	logger.Info("Servers shut down successfully")
}
