// Package balance реализует HTTP-обработчик получения кредитного баланса
// текущего пользователя вместе с проекцией из биллинга для подписчиков.
package balance

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/viqihq/viqi-backend/internal/http/middlewarectx"
	"github.com/viqihq/viqi-backend/internal/http/response"
	"github.com/viqihq/viqi-backend/internal/lib/sl"
	"github.com/viqihq/viqi-backend/internal/services/credits"
)

// Handler управляет HTTP-запросами на чтение баланса.
type Handler struct {
	log     *slog.Logger // Логгер для записи информации и ошибок
	service Service      // Сервис бизнес-логики баланса
}

// Service описывает интерфейс бизнес-логики кредитного баланса.
type Service interface {
	Balance(ctx context.Context, userUID string) (*credits.Balance, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Кредитный баланс
// @Description Возвращает баланс кредитов текущего пользователя. Для подписчиков дополнительно отдаётся проекция остатка из биллинга.
// @Tags Credits
// @Security BearerAuth
// @Produce  json
// @Success 200 {object} map[string]any "Сводка баланса"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера при чтении баланса"
// @Router /me/credits [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.credits.balance"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID := middlewarectx.UserUID(r.Context())
	if userUID == "" {
		log.Error("user uid not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	balance, err := h.service.Balance(r.Context(), userUID)
	if err != nil {
		log.Error("failed to read credit balance", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not read credit balance"))
		return
	}

	log.Info("success to read credit balance", slog.Int("credits", balance.CreditsBalance))
	render.JSON(w, r, response.OKWithData(balance))
}
