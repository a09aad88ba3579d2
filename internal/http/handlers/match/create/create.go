// Package create реализует HTTP-обработчик создания матча по запросу пользователя.
//
// Handler принимает JSON-запрос с текстом запроса на естественном языке,
// валидирует его, извлекает пользователя из контекста и возвращает превью
// с замаскированными контактами и стоимостью раскрытия.
//
// В случае ошибок формируются соответствующие HTTP-ответы с описанием проблемы.
package create

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/viqihq/viqi-backend/internal/http/middlewarectx"
	"github.com/viqihq/viqi-backend/internal/http/response"
	"github.com/viqihq/viqi-backend/internal/lib/sl"
	"github.com/viqihq/viqi-backend/internal/models"
	"github.com/viqihq/viqi-backend/internal/services/match"
)

// Handler управляет HTTP-запросами на создание матчей.
type Handler struct {
	log      *slog.Logger        // Логгер для записи информации и ошибок
	service  Service             // Сервис бизнес-логики подбора контактов
	validate *validator.Validate // Валидатор структуры входящих данных
}

// Service описывает интерфейс бизнес-логики создания матча.
type Service interface {
	Create(ctx context.Context, userUID string, req models.DummyMatchRequest) (*models.MatchResponse, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создать матч
// @Description Подбирает контакты индустрии по запросу на естественном языке. Возвращает превью с замаскированными контактами и стоимость раскрытия в кредитах.
// @Tags Matches
// @Security BearerAuth
// @Accept  json
// @Produce  json
// @Param request body models.DummyMatchRequest true "Запрос на подбор"
// @Success 200 {object} map[string]any "Превью матча"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Нет кандидатов для подбора"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера при создании матча"
// @Router /match [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.match.create"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	log.Info("request body decoded", slog.Any("request", req))

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	userUID := middlewarectx.UserUID(r.Context())
	if userUID == "" {
		log.Error("user uid not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	res, err := h.service.Create(r.Context(), userUID, req)
	if err != nil {
		if errors.Is(err, match.ErrNoCandidates) {
			log.Error("no candidates available")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("no candidates available"))
			return
		}
		log.Error("failed to create match", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not create match"))
		return
	}

	log.Info("success to create match", slog.Int("match_id", res.MatchID))
	render.JSON(w, r, response.OKWithData(res))
}
