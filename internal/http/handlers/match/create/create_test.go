package create

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/viqihq/viqi-backend/internal/http/middlewarectx"
	"github.com/viqihq/viqi-backend/internal/models"
	"github.com/viqihq/viqi-backend/internal/services/match"
)

// MockService реализует интерфейс create.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) Create(ctx context.Context, userUID string, req models.DummyMatchRequest) (*models.MatchResponse, error) {
	args := m.Called(ctx, userUID, req)
	if res := args.Get(0); res != nil {
		return res.(*models.MatchResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestCreateHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tests := []struct {
		name           string
		body           string
		userUID        string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:    "успешное создание матча",
			body:    `{"query": "looking for streaming distribution partners"}`,
			userUID: "uid-1",
			setupMock: func(m *MockService) {
				m.On("Create", mock.Anything, "uid-1", models.DummyMatchRequest{
					Query: "looking for streaming distribution partners",
				}).Return(&models.MatchResponse{
					MatchID:    42,
					CreditCost: 2,
					Status:     models.MatchStatusPreview,
					Results: []models.PersonPreview{
						{Name: "Sarah Martinez", CompanyName: "N*****x", EmailMasked: "s************z@n*****x.com"},
					},
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"match_id":42`,
		},
		{
			name:           "некорректный JSON",
			body:           `{broken`,
			userUID:        "uid-1",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"error":"invalid request body"`,
		},
		{
			name:           "пустой запрос не проходит валидацию",
			body:           `{"query": ""}`,
			userUID:        "uid-1",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field Query is a required field`,
		},
		{
			name:           "слишком большой max_results",
			body:           `{"query": "q", "max_results": 25}`,
			userUID:        "uid-1",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field MaxResults is above the allowed maximum`,
		},
		{
			name:           "нет пользователя в контексте",
			body:           `{"query": "q"}`,
			userUID:        "",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `"error":"unauthorized"`,
		},
		{
			name:    "нет кандидатов",
			body:    `{"query": "q"}`,
			userUID: "uid-1",
			setupMock: func(m *MockService) {
				m.On("Create", mock.Anything, "uid-1", mock.Anything).
					Return(nil, match.ErrNoCandidates)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `no candidates available`,
		},
		{
			name:    "ошибка сервиса",
			body:    `{"query": "q"}`,
			userUID: "uid-1",
			setupMock: func(m *MockService) {
				m.On("Create", mock.Anything, "uid-1", mock.Anything).
					Return(nil, errors.New("db error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `could not create match`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService)

			req := httptest.NewRequest(http.MethodPost, "/match", strings.NewReader(tt.body))
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
