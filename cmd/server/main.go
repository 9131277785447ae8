package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caselink/voice-call-service/internal/config"
	"github.com/caselink/voice-call-service/internal/handler"
	"github.com/caselink/voice-call-service/internal/repository"
	"github.com/caselink/voice-call-service/internal/security"
	"github.com/caselink/voice-call-service/pkg/logger"
	pkgredis "github.com/caselink/voice-call-service/pkg/redis"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// absent .env is normal outside local development
		logger.Base().Debug("no .env file loaded")
	}

	cfg := config.LoadFromEnv()
	if _, err := logger.Init(cfg.LogEnv); err != nil {
		panic(err)
	}
	defer logger.Sync()

	repos, err := repository.NewRepositoryManager()
	if err != nil {
		logger.Base().Fatal("failed to initialize database", zap.Error(err))
	}

	var redisSvc pkgredis.RedisServiceInterface
	if redisCfg := pkgredis.LoadConfigFromEnv(); redisCfg != nil {
		svc, err := pkgredis.NewRedisService(redisCfg)
		if err != nil {
			logger.Base().Warn("redis unavailable, using in-process state and tasks", zap.Error(err))
		} else {
			redisSvc = svc
			logger.Base().Info("redis connected", zap.String("host", redisCfg.Host))
		}
	}

	manager, err := handler.NewHandlerManager(cfg, repos, redisSvc)
	if err != nil {
		logger.Base().Fatal("failed to initialize handlers", zap.Error(err))
	}

	router := mux.NewRouter()
	manager.RegisterRoutes(router)

	retentionCtx, stopRetention := context.WithCancel(context.Background())
	go runRetentionCleanup(retentionCtx, cfg, repos, manager.Gate())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// long WriteTimeout so status event streams can stay open
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Base().Info("call lifecycle service listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Base().Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Base().Info("shutting down")
	stopRetention()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Base().Error("server shutdown failed", zap.Error(err))
	}
	manager.Shutdown()
}

// runRetentionCleanup prunes old status and security events once a day and
// sweeps expired rate-limit buckets along the way.
func runRetentionCleanup(ctx context.Context, cfg *config.Config, repos repository.RepositoryManager, gate *security.Gate) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			statusCutoff := time.Now().AddDate(0, 0, -cfg.StatusRetentionDays)
			if n, err := repos.StatusEvents().DeleteOlderThan(ctx, statusCutoff); err != nil {
				logger.Base().Error("status event cleanup failed", zap.Error(err))
			} else if n > 0 {
				logger.Base().Info("pruned status events", zap.Int64("deleted", n))
			}

			securityCutoff := time.Now().AddDate(0, 0, -cfg.SecurityRetentionDays)
			if n, err := repos.SecurityEvents().DeleteOlderThan(ctx, securityCutoff); err != nil {
				logger.Base().Error("security event cleanup failed", zap.Error(err))
			} else if n > 0 {
				logger.Base().Info("pruned security events", zap.Int64("deleted", n))
			}

			if n := gate.SweepRateBuckets(); n > 0 {
				logger.Base().Info("swept rate-limit buckets", zap.Int("removed", n))
			}
		}
	}
}
