package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/peerit/auth-service/api/swagger"
	"github.com/peerit/auth-service/internal/handler"
	"github.com/peerit/auth-service/internal/middleware"
	"github.com/peerit/auth-service/internal/repository"
	"github.com/peerit/auth-service/internal/service"
	"github.com/peerit/auth-service/pkg/cache"
	"github.com/peerit/auth-service/pkg/config"
	"github.com/peerit/auth-service/pkg/database"
	"github.com/peerit/auth-service/pkg/logger"
	corsmiddleware "github.com/peerit/auth-service/pkg/middleware/cors"
	reqidmiddleware "github.com/peerit/auth-service/pkg/middleware/requestid"
)

// @title PeerIt Auth Service
// @version 1.0.0
// @description Authentication and session lifecycle service
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	if cfg.Database.MigrationsDir != "" {
		if err := database.Migrate(db, cfg.Database.MigrationsDir); err != nil {
			logr.Sugar().Fatalw("failed to run migrations", "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions := newSessionStore(ctx, cfg, logr)

	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	tokenSvc := service.NewTokenService(service.TokenConfig{
		Secret:       cfg.JWT.Secret,
		Issuer:       cfg.JWT.Issuer,
		Audience:     cfg.JWT.Audience,
		AccessExpiry: cfg.JWT.AccessExpiry,
	})
	magicSvc := service.NewMagicLinkService(userRepo, tokenRepo, tokenSvc, validate, logr, metricsSvc, service.MagicLinkConfig{
		Expiry:      cfg.Magic.Expiry,
		FrontendURL: cfg.Magic.FrontendURL,
		BcryptCost:  cfg.Password.BcryptCost,
	})
	authSvc := service.NewAuthService(userRepo, tokenRepo, sessions, tokenSvc, magicSvc, validate, logr, metricsSvc, service.AuthConfig{
		RefreshExpiry:     cfg.JWT.RefreshExpiry,
		SessionTTL:        cfg.Session.TTL,
		MaxFailedAttempts: cfg.Lockout.MaxFailedAttempts,
		LockoutDuration:   cfg.Lockout.Duration,
	})

	cleanupSvc := service.NewCleanupService(tokenRepo, logr, service.CleanupConfig{
		Interval: cfg.Cleanup.Interval,
		Workers:  cfg.Cleanup.Workers,
	})
	cleanupSvc.Start(ctx)
	defer cleanupSvc.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	authHandler := handler.NewAuthHandler(authSvc, magicSvc)
	healthHandler := handler.NewHealthHandler(db, sessions)
	handler.RegisterRoutes(r, cfg.APIPrefix, authHandler, healthHandler, authSvc)

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "session_store", cfg.Session.Store)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("forced shutdown", "error", err)
	}
}

// newSessionStore selects the session backend at startup. Redis is the
// default; the in-process store is only accepted outside production, since
// it cannot share sessions across replicas or survive a restart.
func newSessionStore(ctx context.Context, cfg *config.Config, logr *zap.Logger) service.SessionStore {
	switch cfg.Session.Store {
	case config.SessionStoreMemory:
		if cfg.Env == config.EnvProduction {
			logr.Sugar().Fatalw("in-memory session store is not allowed in production")
		}
		store := repository.NewMemorySessionRepository()
		store.StartJanitor(ctx, time.Minute)
		logr.Warn("using in-memory session store; sessions will not survive a restart")
		return store
	case config.SessionStoreRedis, "":
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			if cfg.Env == config.EnvProduction {
				logr.Sugar().Fatalw("failed to connect to redis", "error", err)
			}
			logr.Sugar().Warnw("redis unavailable, falling back to in-memory sessions", "error", err)
			store := repository.NewMemorySessionRepository()
			store.StartJanitor(ctx, time.Minute)
			return store
		}
		return repository.NewRedisSessionRepository(client, logr)
	default:
		logr.Sugar().Fatalw("unknown session store", "store", cfg.Session.Store)
		return nil
	}
}
