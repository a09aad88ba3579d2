// Package history реализует HTTP-обработчик получения истории матчей пользователя.
package history

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/viqihq/viqi-backend/internal/http/middlewarectx"
	"github.com/viqihq/viqi-backend/internal/http/response"
	"github.com/viqihq/viqi-backend/internal/lib/sl"
	"github.com/viqihq/viqi-backend/internal/models"
)

// Handler управляет HTTP-запросами на чтение истории матчей.
type Handler struct {
	log     *slog.Logger // Логгер для записи информации и ошибок
	service Service      // Сервис бизнес-логики истории матчей
}

// Service описывает интерфейс бизнес-логики истории матчей.
type Service interface {
	History(ctx context.Context, userUID string) ([]models.MatchHistoryItem, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary История матчей
// @Description Возвращает последние матчи текущего пользователя со статусами и стоимостью.
// @Tags Matches
// @Security BearerAuth
// @Produce  json
// @Success 200 {object} map[string]any "История матчей"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера при чтении истории"
// @Router /match/history [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.match.history"
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

	history, err := h.service.History(r.Context(), userUID)
	if err != nil {
		log.Error("failed to read match history", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not read match history"))
		return
	}

	log.Info("success to read match history", slog.Int("count", len(history)))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"matches": history,
	}))
}
