package subscription

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/viqihq/viqi-backend/internal/models"
	"github.com/viqihq/viqi-backend/internal/services/metering"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) UserByUID(ctx context.Context, uid string) (*models.User, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *RepoMock) ListUsersForSubscriptionCheck(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}
func (m *RepoMock) UpdateUserSubscription(ctx context.Context, uid string, subscriptionID, status, plan *string, expiresAt *time.Time) error {
	return m.Called(ctx, uid, subscriptionID, status, plan, expiresAt).Error(0)
}
func (m *RepoMock) ExpireUserSubscription(ctx context.Context, uid string) error {
	return m.Called(ctx, uid).Error(0)
}

type BillerMock struct{ mock.Mock }

func (m *BillerMock) SubscriptionInfoForEmail(ctx context.Context, email string) (*metering.SubscriptionInfo, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metering.SubscriptionInfo), args.Error(1)
}

func strPtr(s string) *string { return &s }

func TestCheckExpiry(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name             string
		user             models.User
		wantStatus       string
		wantActionNeeded bool
	}{
		{
			name:             "no subscription at all",
			user:             models.User{},
			wantStatus:       StatusNoSubscription,
			wantActionNeeded: true,
		},
		{
			name: "expired yesterday",
			user: models.User{
				SubscriptionStatus:    strPtr(models.SubscriptionStatusActive),
				SubscriptionExpiresAt: timePtr(now.AddDate(0, 0, -1)),
			},
			wantStatus:       StatusExpired,
			wantActionNeeded: true,
		},
		{
			name: "expires in three days",
			user: models.User{
				SubscriptionStatus:    strPtr(models.SubscriptionStatusActive),
				SubscriptionExpiresAt: timePtr(now.AddDate(0, 0, 3)),
			},
			wantStatus:       StatusExpiringSoon,
			wantActionNeeded: true,
		},
		{
			name: "expires in exactly seven days",
			user: models.User{
				SubscriptionStatus:    strPtr(models.SubscriptionStatusActive),
				SubscriptionExpiresAt: timePtr(now.AddDate(0, 0, 7)),
			},
			wantStatus:       StatusExpiringSoon,
			wantActionNeeded: true,
		},
		{
			name: "expires in two weeks",
			user: models.User{
				SubscriptionStatus:    strPtr(models.SubscriptionStatusActive),
				SubscriptionExpiresAt: timePtr(now.AddDate(0, 0, 14)),
			},
			wantStatus: StatusExpiringWithinMonth,
		},
		{
			name: "expires in three months",
			user: models.User{
				SubscriptionStatus:    strPtr(models.SubscriptionStatusActive),
				SubscriptionExpiresAt: timePtr(now.AddDate(0, 3, 0)),
			},
			wantStatus: StatusActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckExpiry(&tt.user, now)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantActionNeeded, got.ActionNeeded)
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestService_SyncFromStripe_UpdatesCachedFields(t *testing.T) {
	expiresAt := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	repo := new(RepoMock)
	repo.On("UpdateUserSubscription", mock.Anything, "uid-1",
		strPtr("sub_1"), strPtr("active"), strPtr("pro"), &expiresAt).Return(nil).Once()

	biller := new(BillerMock)
	biller.On("SubscriptionInfoForEmail", mock.Anything, "user@example.com").
		Return(&metering.SubscriptionInfo{
			SubscriptionID: "sub_1",
			Status:         "active",
			Plan:           "pro",
			ExpiresAt:      expiresAt,
		}, nil).Once()

	service := New(repo, biller, slog.New(slog.DiscardHandler))

	user := &models.User{UID: "uid-1", Email: "user@example.com"}
	require.NoError(t, service.SyncFromStripe(context.Background(), user))
	repo.AssertExpectations(t)

	// Переданная структура тоже обновляется свежими данными биллинга.
	require.NotNil(t, user.SubscriptionExpiresAt)
	assert.Equal(t, expiresAt, *user.SubscriptionExpiresAt)
	assert.Equal(t, strPtr("sub_1"), user.StripeSubscriptionID)
	assert.Equal(t, strPtr("active"), user.SubscriptionStatus)
	assert.Equal(t, strPtr("pro"), user.SubscriptionPlan)
}

func TestService_SyncFromStripe_ExpiresVanishedSubscription(t *testing.T) {
	repo := new(RepoMock)
	repo.On("ExpireUserSubscription", mock.Anything, "uid-1").Return(nil).Once()

	biller := new(BillerMock)
	biller.On("SubscriptionInfoForEmail", mock.Anything, "user@example.com").
		Return(nil, nil).Once()

	service := New(repo, biller, slog.New(slog.DiscardHandler))

	user := &models.User{
		UID:                  "uid-1",
		Email:                "user@example.com",
		StripeSubscriptionID: strPtr("sub_gone"),
	}
	require.NoError(t, service.SyncFromStripe(context.Background(), user))
	repo.AssertExpectations(t)

	assert.Nil(t, user.StripeSubscriptionID)
	assert.Equal(t, strPtr(models.SubscriptionStatusExpired), user.SubscriptionStatus)
	assert.Nil(t, user.SubscriptionExpiresAt)
}

func TestService_SyncFromStripe_NoopWithoutSubscription(t *testing.T) {
	repo := new(RepoMock)

	biller := new(BillerMock)
	biller.On("SubscriptionInfoForEmail", mock.Anything, "user@example.com").
		Return(nil, nil).Once()

	service := New(repo, biller, slog.New(slog.DiscardHandler))

	user := &models.User{UID: "uid-1", Email: "user@example.com"}
	require.NoError(t, service.SyncFromStripe(context.Background(), user))
	repo.AssertNotCalled(t, "ExpireUserSubscription", mock.Anything, mock.Anything)
}

func TestService_RunCleanup_ContinuesAfterUserError(t *testing.T) {
	now := time.Now().UTC()
	firstUser := &models.User{
		UID:                   "uid-1",
		Email:                 "first@example.com",
		SubscriptionStatus:    strPtr(models.SubscriptionStatusActive),
		SubscriptionExpiresAt: timePtr(now.AddDate(0, 0, 3)),
	}
	secondUser := &models.User{
		UID:                   "uid-2",
		Email:                 "second@example.com",
		SubscriptionStatus:    strPtr(models.SubscriptionStatusActive),
		SubscriptionExpiresAt: timePtr(now.AddDate(0, 0, -1)),
	}

	repo := new(RepoMock)
	repo.On("ListUsersForSubscriptionCheck", mock.Anything).
		Return([]*models.User{firstUser, secondUser}, nil).Once()
	repo.On("UpdateUserSubscription", mock.Anything, "uid-2",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	repo.On("ExpireUserSubscription", mock.Anything, "uid-2").Return(nil).Once()

	biller := new(BillerMock)
	// Первый пользователь (истекает скоро) падает на биллинге, второй
	// (уже истёк, в биллинге подписка отменена) обрабатывается.
	biller.On("SubscriptionInfoForEmail", mock.Anything, "first@example.com").
		Return(nil, errors.New("stripe unavailable")).Once()
	biller.On("SubscriptionInfoForEmail", mock.Anything, "second@example.com").
		Return(&metering.SubscriptionInfo{
			SubscriptionID: "sub_2",
			Status:         "canceled",
			Plan:           "pro",
			ExpiresAt:      now.AddDate(0, 0, -1),
		}, nil).Once()

	service := New(repo, biller, slog.New(slog.DiscardHandler))
	service.RunCleanup(context.Background(), nil)

	repo.AssertExpectations(t)
	biller.AssertExpectations(t)
	repo.AssertNotCalled(t, "ExpireUserSubscription", mock.Anything, "uid-1")
}

func TestService_RunCleanup_RenewedSubscriptionIsNotExpired(t *testing.T) {
	now := time.Now().UTC()
	// Локальная запись устарела: срок вышел, но в биллинге подписка продлена.
	user := &models.User{
		UID:                   "uid-1",
		Email:                 "user@example.com",
		StripeSubscriptionID:  strPtr("sub_1"),
		SubscriptionStatus:    strPtr(models.SubscriptionStatusActive),
		SubscriptionExpiresAt: timePtr(now.AddDate(0, 0, -2)),
	}

	repo := new(RepoMock)
	repo.On("ListUsersForSubscriptionCheck", mock.Anything).
		Return([]*models.User{user}, nil).Once()
	repo.On("UpdateUserSubscription", mock.Anything, "uid-1",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	biller := new(BillerMock)
	biller.On("SubscriptionInfoForEmail", mock.Anything, "user@example.com").
		Return(&metering.SubscriptionInfo{
			SubscriptionID: "sub_1",
			Status:         "active",
			Plan:           "pro",
			ExpiresAt:      now.AddDate(0, 1, 0),
		}, nil).Once()

	service := New(repo, biller, slog.New(slog.DiscardHandler))
	service.RunCleanup(context.Background(), nil)

	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "ExpireUserSubscription", mock.Anything, mock.Anything)
}

func TestService_RunCleanup_ExpiresWhenBillingUnavailable(t *testing.T) {
	now := time.Now().UTC()
	user := &models.User{
		UID:                   "uid-1",
		Email:                 "user@example.com",
		SubscriptionStatus:    strPtr(models.SubscriptionStatusActive),
		SubscriptionExpiresAt: timePtr(now.AddDate(0, 0, -2)),
	}

	repo := new(RepoMock)
	repo.On("ListUsersForSubscriptionCheck", mock.Anything).
		Return([]*models.User{user}, nil).Once()
	repo.On("ExpireUserSubscription", mock.Anything, "uid-1").Return(nil).Once()

	biller := new(BillerMock)
	biller.On("SubscriptionInfoForEmail", mock.Anything, "user@example.com").
		Return(nil, errors.New("stripe unavailable")).Once()

	service := New(repo, biller, slog.New(slog.DiscardHandler))
	service.RunCleanup(context.Background(), nil)

	// Срок в базе вышел: недоступность биллинга гашение не отменяет.
	repo.AssertExpectations(t)
}

func TestService_RunCleanup_SkipsHealthySubscriptions(t *testing.T) {
	now := time.Now().UTC()
	user := &models.User{
		UID:                   "uid-1",
		Email:                 "user@example.com",
		SubscriptionStatus:    strPtr(models.SubscriptionStatusActive),
		SubscriptionExpiresAt: timePtr(now.AddDate(0, 3, 0)),
	}

	repo := new(RepoMock)
	repo.On("ListUsersForSubscriptionCheck", mock.Anything).
		Return([]*models.User{user}, nil).Once()

	biller := new(BillerMock)

	service := New(repo, biller, slog.New(slog.DiscardHandler))
	service.RunCleanup(context.Background(), nil)

	// Действующая подписка биллинг не дёргает и в базе не трогается.
	biller.AssertNotCalled(t, "SubscriptionInfoForEmail", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "UpdateUserSubscription",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "ExpireUserSubscription", mock.Anything, mock.Anything)
}
