package viqibackend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/viqihq/viqi-backend/internal/cache"
	"github.com/viqihq/viqi-backend/internal/config"
	"github.com/viqihq/viqi-backend/internal/lib/jwt"
	"github.com/viqihq/viqi-backend/internal/llm"
	"github.com/viqihq/viqi-backend/internal/migrations"
	authservice "github.com/viqihq/viqi-backend/internal/services/auth"
	creditsservice "github.com/viqihq/viqi-backend/internal/services/credits"
	"github.com/viqihq/viqi-backend/internal/services/entitlement"
	matchservice "github.com/viqihq/viqi-backend/internal/services/match"
	"github.com/viqihq/viqi-backend/internal/services/metering"
	subscriptionservice "github.com/viqihq/viqi-backend/internal/services/subscription"
	"github.com/viqihq/viqi-backend/internal/storage/repository"
)

// App представляет основное HTTP-приложение бэкенда.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
}

// New собирает зависимости приложения: хранилище, кеш, LLM-клиент,
// биллинг и доменные сервисы, после чего регистрирует маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	llmClient := llm.New(cfg.LLM, logger)
	meteringService := metering.New(cfg.Stripe.SecretKey, cacheRedis, logger)
	assessor := entitlement.NewCostAssessor(llmClient, cfg.Matching, logger)

	authService := authservice.New(db, jwtMaker)
	matchService := matchservice.New(db, llmClient, assessor, meteringService, cfg.Matching, logger)
	creditsService := creditsservice.New(db, meteringService, logger)
	subscriptionService := subscriptionservice.New(db, meteringService, logger)

	router := chi.NewRouter()

	RegisterRoutes(router, logger, jwtMaker, authService, matchService, creditsService, subscriptionService)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		cache:  cacheRedis,
	}, nil
}

// Run запускает HTTP-сервер и корректно завершает его при отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if closeErr := a.db.DB.Close(); closeErr != nil {
			a.logger.Error("failed to close database", slog.Any("err", closeErr))
		}
		return err
	}
}
