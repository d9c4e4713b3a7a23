package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bimakw/pagemarket/internal/application/services"
	"github.com/bimakw/pagemarket/internal/config"
	"github.com/bimakw/pagemarket/internal/domain/entities"
	"github.com/bimakw/pagemarket/internal/domain/repositories"
	"github.com/bimakw/pagemarket/internal/infrastructure/cache"
	"github.com/bimakw/pagemarket/internal/infrastructure/ethereum"
	"github.com/bimakw/pagemarket/internal/infrastructure/metadata"
	"github.com/bimakw/pagemarket/internal/presentation/handlers"
	"github.com/bimakw/pagemarket/internal/presentation/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.Log)
	defer logger.Sync()

	if !common.IsHexAddress(cfg.Ethereum.ContractAddress) {
		logger.Fatal("Invalid contract address", zap.String("address", cfg.Ethereum.ContractAddress))
	}
	tokenAddress := common.HexToAddress(cfg.Ethereum.ContractAddress)

	logger.Info("Starting pagemarket",
		zap.String("rpc_url", cfg.Ethereum.RPCURL),
		zap.String("contract", tokenAddress.Hex()),
		zap.Int("port", cfg.API.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Ethereum node
	ethClient, err := ethereum.NewClient(cfg.Ethereum, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Ethereum node", zap.Error(err))
	}
	defer ethClient.Close()

	contracts, err := ethereum.NewContracts(tokenAddress)
	if err != nil {
		logger.Fatal("Failed to load contract ABIs", zap.Error(err))
	}
	tokenContract, err := contracts.Get(entities.TokenContract)
	if err != nil {
		logger.Fatal("Failed to resolve Token contract", zap.Error(err))
	}

	reader := ethereum.NewReader(ethClient, contracts, cfg.Poller.MaxConcurrentCalls, logger)
	history := ethereum.NewHistoryFetcher(ethClient, tokenContract, cfg.Ethereum.DeployBlock, cfg.Metadata.WorkerCount, logger)

	// Wallet is optional; without one the service is read-only
	var (
		submitter repositories.TransactionSubmitter
		gasPolicy repositories.GasPricePolicy
	)
	if cfg.Wallet.PrivateKey != "" {
		wallet, err := ethereum.NewKeyWallet(cfg.Wallet.PrivateKey)
		if err != nil {
			logger.Fatal("Failed to load wallet", zap.Error(err))
		}

		oracle := ethereum.NewGasOracle(ethClient, cfg.Gas, logger)
		oracle.Start(ctx)
		defer oracle.Stop()

		txSubmitter := ethereum.NewSubmitter(ethClient, wallet, contracts, ethClient.ChainID(), cfg.Tx, logger)
		defer txSubmitter.Close()

		submitter = txSubmitter
		gasPolicy = oracle
		logger.Info("Wallet loaded", zap.String("address", wallet.Address().Hex()))
	} else {
		logger.Warn("No wallet configured, marketplace actions are disabled")
	}

	// Connect to Redis cache (optional)
	var (
		metadataCache repositories.MetadataCache
		cacheChecker  handlers.HealthChecker
	)
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(cfg.Redis, cfg.Metadata.CacheTTL, logger)
		if err != nil {
			logger.Warn("Failed to connect to Redis, running without shared cache", zap.Error(err))
		} else {
			defer redisCache.Close()
			metadataCache = redisCache
			cacheChecker = redisCache
		}
	}

	// Create services
	poller := services.NewPoller(reader, cfg.Poller, logger)
	resolver := services.NewMetadataResolver(metadata.NewClient(cfg.Metadata, logger), metadataCache, cfg.Metadata, logger)
	marketService := services.NewMarketService(poller, reader, submitter, gasPolicy, cfg.Poller, logger)
	galleryService := services.NewGalleryService(poller, reader, resolver, cfg.Poller, logger)
	supplyService := services.NewSupplyService(poller, reader, cfg.Poller, logger)
	historyService := services.NewHistoryService(history, logger)

	if err := supplyService.Start(); err != nil {
		logger.Fatal("Failed to start supply polling", zap.Error(err))
	}

	// Create handlers
	tokenHandler := handlers.NewTokenHandler(marketService, resolver, historyService, logger)
	galleryHandler := handlers.NewGalleryHandler(galleryService, supplyService, logger)
	transactionHandler := handlers.NewTransactionHandler(marketService, logger)
	healthHandler := handlers.NewHealthHandler(ethClient, cacheChecker)

	// Setup router
	r := chi.NewRouter()

	// Middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(chimiddleware.Recoverer)

	// Health endpoints (no rate limiting)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/live", healthHandler.Live)
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimiter(cfg.API.RateLimitRPS))
		tokenHandler.RegisterRoutes(r)
		galleryHandler.RegisterRoutes(r)
		transactionHandler.RegisterRoutes(r)
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	go func() {
		logger.Info("API server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal, shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	// Stop feeds before the poller so followers drain cleanly
	marketService.Close()
	galleryService.Close()
	supplyService.Stop()
	poller.Stop()
	cancel()

	logger.Info("Shutdown complete")
}

func setupLogger(cfg config.LogConfig) *zap.Logger {
	var zapLevel zapcore.Level
	switch cfg.Level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	encoding := "json"
	encoderConfig := zap.NewProductionEncoderConfig()
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, _ := config.Build()
	return logger
}
