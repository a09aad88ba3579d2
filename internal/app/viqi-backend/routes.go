// Package viqibackend предоставляет маршруты для основного приложения.
package viqibackend

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/viqihq/viqi-backend/internal/http/handlers/auth/login"
	"github.com/viqihq/viqi-backend/internal/http/handlers/auth/register"
	"github.com/viqihq/viqi-backend/internal/http/handlers/credits/balance"
	"github.com/viqihq/viqi-backend/internal/http/handlers/match/create"
	"github.com/viqihq/viqi-backend/internal/http/handlers/match/history"
	"github.com/viqihq/viqi-backend/internal/http/handlers/match/reveal"
	"github.com/viqihq/viqi-backend/internal/http/handlers/subscription/status"
	"github.com/viqihq/viqi-backend/internal/http/middlewarectx"
	"github.com/viqihq/viqi-backend/internal/lib/jwt"
	authservice "github.com/viqihq/viqi-backend/internal/services/auth"
	creditsservice "github.com/viqihq/viqi-backend/internal/services/credits"
	matchservice "github.com/viqihq/viqi-backend/internal/services/match"
	subscriptionservice "github.com/viqihq/viqi-backend/internal/services/subscription"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, jwtMaker jwt.Maker,
	authService *authservice.Service, matchService *matchservice.Service,
	creditsService *creditsservice.Service, subscriptionService *subscriptionservice.Service) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/register", register.New(logger, authService).ServeHTTP)
		r.Post("/login", login.New(logger, authService).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(jwtMaker, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Post("/match", create.New(logger, matchService).ServeHTTP)
			r.Get("/match/history", history.New(logger, matchService).ServeHTTP)
			r.Post("/reveal/{id}", reveal.New(logger, matchService).ServeHTTP)
			r.Get("/me/credits", balance.New(logger, creditsService).ServeHTTP)
			r.Get("/me/subscription", status.New(logger, subscriptionService).ServeHTTP)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
