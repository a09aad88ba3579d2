package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/viqihq/viqi-backend/internal/lib/jwt"
	"github.com/viqihq/viqi-backend/internal/lib/password"
	"github.com/viqihq/viqi-backend/internal/models"
)

type UsersMock struct{ mock.Mock }

func (m *UsersMock) CreateUser(ctx context.Context, user models.User) (string, error) {
	args := m.Called(ctx, user)
	return args.String(0), args.Error(1)
}
func (m *UsersMock) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func TestService_Register(t *testing.T) {
	users := new(UsersMock)
	users.On("CreateUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
		return u.Email == "test@example.com" &&
			u.Username == "testuser" &&
			u.Role == "user" &&
			u.CreditsBalance == welcomeCredits &&
			u.UID != "" &&
			u.PasswordHash != "rawpassword"
	})).Return("uid-1", nil).Once()

	service := New(users, jwt.NewJWTMaker("test-secret", time.Hour))

	uid, err := service.Register(context.Background(), "test@example.com", "testuser", "rawpassword")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", uid)
	users.AssertExpectations(t)
}

func TestService_Login(t *testing.T) {
	hashed, err := password.GetHash("rawpassword")
	require.NoError(t, err)

	storedUser := &models.User{
		UID:          "uid-1",
		Email:        "test@example.com",
		Username:     "testuser",
		PasswordHash: hashed,
		Role:         "user",
	}

	tests := []struct {
		name        string
		username    string
		rawPassword string
		setup       func(m *UsersMock)
		wantErr     error
	}{
		{
			name:        "successful login",
			username:    "testuser",
			rawPassword: "rawpassword",
			setup: func(m *UsersMock) {
				m.On("UserByUsername", mock.Anything, "testuser").Return(storedUser, nil).Once()
			},
		},
		{
			name:        "wrong password",
			username:    "testuser",
			rawPassword: "wrong",
			setup: func(m *UsersMock) {
				m.On("UserByUsername", mock.Anything, "testuser").Return(storedUser, nil).Once()
			},
			wantErr: ErrInvalidCredentials,
		},
		{
			name:        "unknown user",
			username:    "nonexistent",
			rawPassword: "rawpassword",
			setup: func(m *UsersMock) {
				m.On("UserByUsername", mock.Anything, "nonexistent").
					Return(nil, errors.New("not found")).Once()
			},
			wantErr: ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(UsersMock)
			tt.setup(users)

			maker := jwt.NewJWTMaker("test-secret", time.Hour)
			service := New(users, maker)

			token, role, err := service.Login(context.Background(), tt.username, tt.rawPassword)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, token)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user", role)

			claims, err := maker.ParseToken(token)
			require.NoError(t, err)
			assert.Equal(t, "uid-1", claims.UID)
			assert.Equal(t, "test@example.com", claims.Email)
		})
	}
}
