// Command pe-server starts the prompt enhancement HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/prompt-enhancer/internal/config"
	"github.com/and161185/prompt-enhancer/internal/gateway"
	"github.com/and161185/prompt-enhancer/internal/httpapi"
	"github.com/and161185/prompt-enhancer/internal/identity"
	"github.com/and161185/prompt-enhancer/internal/metrics"
	"github.com/and161185/prompt-enhancer/internal/migrate"
	"github.com/and161185/prompt-enhancer/internal/model"
	"github.com/and161185/prompt-enhancer/internal/quota"
	"github.com/and161185/prompt-enhancer/internal/repository/postgres"
	"github.com/and161185/prompt-enhancer/internal/service"
	"github.com/and161185/prompt-enhancer/internal/vault"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, wires services and serves HTTP until signalled.
func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	addr := flag.String("addr", "", "listen address (overrides server.addr)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides database.dsn)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}

	var logger *zap.Logger
	if cfg.Log.Development {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
		gin.SetMode(gin.ReleaseMode)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Server.Addr),
	)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	cipher, err := vault.New(cfg.Vault.MasterKey)
	if err != nil {
		logger.Fatal("vault", zap.Error(err))
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ver, err := migrate.Up(ctx, cfg.Database.DSN, logger)
	if err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}
	logger.Info("schema ready", zap.Int64("version", ver))

	db, err := postgres.New(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("postgres.New", zap.Error(err))
	}
	defer db.Close()

	// Repositories
	userRepo := postgres.NewUserRepo(db)
	planRepo := postgres.NewPlanRepo(db)
	auditRepo := postgres.NewAuditRepo(db)
	recordRepo := postgres.NewEnhancementRepo(db)
	ledger := quota.NewLedger(quota.NewPG(db.Pool), nil)

	// Identity, optionally cached in redis
	var verifier identity.Verifier = identity.NewJWTVerifier([]byte(cfg.Auth.JWTKey), cfg.Auth.Leeway)
	if cfg.Redis.Addr != "" {
		rdb, err := identity.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()
		verifier = identity.NewCachedVerifier(verifier, rdb, cfg.Auth.CacheTTL, logger)
	}

	gw := gateway.NewRegistry(map[model.Provider]gateway.Gateway{
		model.ProviderOpenAI:    gateway.NewOpenAI(cfg.Providers.OpenAI.BaseURL, cfg.Gateway.Timeout, logger),
		model.ProviderAnthropic: gateway.NewAnthropic(cfg.Providers.Anthropic.BaseURL, cfg.Gateway.Timeout, logger),
	})

	// Services
	userSvc := service.NewUserService(userRepo, planRepo, logger)
	credSvc := service.NewCredentialService(userRepo, auditRepo, cipher, logger)
	enhanceSvc := service.NewEnhanceService(userRepo, planRepo, recordRepo, credSvc, ledger, gw, service.EnhanceOptions{
		SharedKeys: map[model.Provider]string{
			model.ProviderOpenAI:    cfg.Providers.OpenAI.APIKey,
			model.ProviderAnthropic: cfg.Providers.Anthropic.APIKey,
		},
		FallbackOnUpstreamError: cfg.Enhance.FallbackOnUpstreamError,
		ContextBudget:           cfg.Enhance.ContextBudget,
		GatewayTimeout:          cfg.Gateway.Timeout,
	}, logger)
	historySvc := service.NewHistoryService(recordRepo, logger)
	quotaSvc := service.NewQuotaService(ledger, recordRepo)

	rl := httpapi.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	go rl.RunCleanup(ctx, 10*time.Minute, 30*time.Minute)

	router := httpapi.NewRouter(httpapi.Services{
		Users:   userSvc,
		Creds:   credSvc,
		Enhance: enhanceSvc,
		History: historySvc,
		Quota:   quotaSvc,
	}, verifier, rl, httpapi.Options{
		AllowedOrigin: cfg.Server.AllowedOrigin,
		ServeMetrics:  cfg.Metrics.Enabled && cfg.Metrics.Addr == "",
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled && cfg.Metrics.Addr != "" {
		metricsSrv = metrics.NewServer(cfg.Metrics.Addr, logger)
		go func() {
			if err := metricsSrv.Start(); err != nil {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.Server.TLSCert != "" {
			logger.Info("listening (TLS)", zap.String("addr", cfg.Server.Addr))
			errCh <- srv.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
			return
		}
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown", zap.Error(err))
			_ = srv.Close()
		}
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}
