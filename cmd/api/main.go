package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"fitness-auth/internal/config"
	"fitness-auth/internal/db"
	apihttp "fitness-auth/internal/http"
	"fitness-auth/internal/repository"
	"fitness-auth/internal/service"
	"fitness-auth/internal/workos"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Ping(ctx, pool); err != nil {
		logger.Fatal("db ping", zap.Error(err))
	}
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	// Un único cliente WorkOS construido desde configuración validada; se
	// inyecta en vez de vivir como estado global del proceso.
	idpClient, err := workos.NewHTTPClient(cfg.WorkOSBaseURL, cfg.WorkOSAPIKey, cfg.WorkOSClientID, cfg.WorkOSRedirectURI, logger)
	if err != nil {
		logger.Fatal("workos client init", zap.Error(err))
	}

	profileTTL := time.Duration(cfg.ProfileCacheTTLSecs) * time.Second
	var profileCache service.ProfileCache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			profileCache = service.NewRedisProfileCache(redisClient, profileTTL)
		}
		cancel()
	}
	if profileCache == nil {
		profileCache = service.NewMemoryProfileCache(profileTTL)
	}

	userRepo := repository.NewPgUserRepository(pool)
	authSvc := service.NewAuthService(logger, userRepo, idpClient, profileCache)
	authHandler := apihttp.NewAuthHandler(logger, authSvc, cfg.AppCallbackURL)
	router := apihttp.NewRouter(logger, authSvc, authHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
