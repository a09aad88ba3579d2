package reveal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/viqihq/viqi-backend/internal/http/middlewarectx"
	"github.com/viqihq/viqi-backend/internal/models"
	"github.com/viqihq/viqi-backend/internal/services/entitlement"
	"github.com/viqihq/viqi-backend/internal/storage/repository"
)

// MockService реализует интерфейс reveal.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) Reveal(ctx context.Context, userUID string, matchID int) (*models.RevealResponse, error) {
	args := m.Called(ctx, userUID, matchID)
	if res := args.Get(0); res != nil {
		return res.(*models.RevealResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestRevealHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tests := []struct {
		name           string
		matchID        string
		userUID        string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:    "успешное раскрытие",
			matchID: "42",
			userUID: "uid-1",
			setupMock: func(m *MockService) {
				m.On("Reveal", mock.Anything, "uid-1", 42).Return(&models.RevealResponse{
					MatchID: 42,
					Results: []models.PersonRevealed{
						{Name: "Sarah Martinez", Email: "sarah.martinez@netflix.com"},
					},
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"email":"sarah.martinez@netflix.com"`,
		},
		{
			name:           "некорректный id в URL",
			matchID:        "abc",
			userUID:        "uid-1",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `failed to decode id from url`,
		},
		{
			name:           "нет пользователя в контексте",
			matchID:        "42",
			userUID:        "",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `"error":"unauthorized"`,
		},
		{
			name:    "чужой или несуществующий матч",
			matchID: "42",
			userUID: "uid-2",
			setupMock: func(m *MockService) {
				m.On("Reveal", mock.Anything, "uid-2", 42).
					Return(nil, fmt.Errorf("match.Reveal: %w", repository.ErrNotFound))
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `match not found`,
		},
		{
			name:    "нечем оплатить раскрытие",
			matchID: "42",
			userUID: "uid-1",
			setupMock: func(m *MockService) {
				m.On("Reveal", mock.Anything, "uid-1", 42).
					Return(nil, &entitlement.DeniedError{
						Reason: "insufficient credits: need 3, have 1",
						Hint:   "buy credits or subscribe",
					})
			},
			expectedStatus: http.StatusPaymentRequired,
			expectedBody:   `buy credits or subscribe`,
		},
		{
			name:    "ошибка сервиса",
			matchID: "42",
			userUID: "uid-1",
			setupMock: func(m *MockService) {
				m.On("Reveal", mock.Anything, "uid-1", 42).
					Return(nil, errors.New("db error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `could not reveal match`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService)

			req := httptest.NewRequest(http.MethodPost, "/reveal/"+tt.matchID, nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", tt.matchID)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
			if tt.userUID != "" {
				req = req.WithContext(context.WithValue(req.Context(), middlewarectx.UID, tt.userUID))
			}

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.True(t, strings.Contains(w.Body.String(), tt.expectedBody),
				"response body should contain %s, got %s", tt.expectedBody, w.Body.String())

			mockService.AssertExpectations(t)
		})
	}
}
