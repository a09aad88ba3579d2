// Package reveal реализует HTTP-обработчик раскрытия контактов матча.
//
// Handler извлекает ID матча из URL, проверяет владение, списывает оплату
// через бизнес-логику и возвращает полные контакты. Повторное раскрытие
// идемпотентно и не приводит к повторному списанию.
package reveal

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/viqihq/viqi-backend/internal/http/middlewarectx"
	"github.com/viqihq/viqi-backend/internal/http/response"
	"github.com/viqihq/viqi-backend/internal/lib/sl"
	"github.com/viqihq/viqi-backend/internal/models"
	"github.com/viqihq/viqi-backend/internal/services/entitlement"
	"github.com/viqihq/viqi-backend/internal/storage/repository"
)

// Handler управляет HTTP-запросами на раскрытие контактов матча.
type Handler struct {
	log     *slog.Logger // Логгер для записи информации и ошибок
	service Service      // Сервис бизнес-логики раскрытия
}

// Service описывает интерфейс бизнес-логики раскрытия матча.
type Service interface {
	Reveal(ctx context.Context, userUID string, matchID int) (*models.RevealResponse, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Раскрыть контакты матча
// @Description Раскрывает контакты матча за кредиты или по активной подписке. Повторный вызов идемпотентен и не списывает кредиты.
// @Tags Matches
// @Security BearerAuth
// @Produce  json
// @Param id path int true "ID матча"
// @Success 200 {object} map[string]any "Раскрытые контакты"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 402 {object} response.ErrorResponse "Недостаточно кредитов и нет подписки"
// @Failure 404 {object} response.ErrorResponse "Матч не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера при раскрытии"
// @Router /reveal/{id} [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.match.reveal"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	matchID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		log.Error("failed to decode id from url", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode id from url"))
		return
	}

	userUID := middlewarectx.UserUID(r.Context())
	if userUID == "" {
		log.Error("user uid not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	res, err := h.service.Reveal(r.Context(), userUID, matchID)
	if err != nil {
		var denied *entitlement.DeniedError
		switch {
		case errors.Is(err, repository.ErrNotFound):
			log.Error("match not found", slog.Int("match_id", matchID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("match not found"))
		case errors.As(err, &denied):
			log.Info("reveal denied", slog.String("hint", denied.Hint))
			w.WriteHeader(http.StatusPaymentRequired)
			render.JSON(w, r, response.Error(denied.Reason+"; "+denied.Hint))
		case errors.Is(err, repository.ErrInsufficientCredits):
			log.Info("reveal denied, balance changed concurrently")
			w.WriteHeader(http.StatusPaymentRequired)
			render.JSON(w, r, response.Error("insufficient credits"))
		default:
			log.Error("failed to reveal match", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not reveal match"))
		}
		return
	}

	log.Info("success to reveal match", slog.Int("match_id", matchID))
	render.JSON(w, r, response.OKWithData(res))
}
