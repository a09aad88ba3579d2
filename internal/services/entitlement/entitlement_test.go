package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viqihq/viqi-backend/internal/config"
	"github.com/viqihq/viqi-backend/internal/models"
)

func strPtr(s string) *string { return &s }

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	future := now.AddDate(0, 1, 0)
	past := now.AddDate(0, -1, 0)

	tests := []struct {
		name     string
		user     models.User
		cost     int
		want     Decision
		wantHint string
	}{
		{
			name: "active subscription wins over credits",
			user: models.User{
				CreditsBalance:        10,
				SubscriptionStatus:    strPtr(models.SubscriptionStatusActive),
				SubscriptionExpiresAt: &future,
			},
			cost: 3,
			want: Decision{Method: MethodSubscription},
		},
		{
			name: "credits when no subscription",
			user: models.User{CreditsBalance: 5},
			cost: 3,
			want: Decision{Method: MethodCredits, DeductCredits: true},
		},
		{
			name: "expired subscription falls back to credits",
			user: models.User{
				CreditsBalance:        5,
				SubscriptionStatus:    strPtr(models.SubscriptionStatusActive),
				SubscriptionExpiresAt: &past,
			},
			cost: 3,
			want: Decision{Method: MethodCredits, DeductCredits: true},
		},
		{
			name:     "denied without credits or subscription",
			user:     models.User{CreditsBalance: 1},
			cost:     3,
			wantHint: "buy credits or subscribe",
		},
		{
			name: "past_due hints at payment method",
			user: models.User{
				CreditsBalance:        0,
				SubscriptionStatus:    strPtr(models.SubscriptionStatusPastDue),
				SubscriptionExpiresAt: &past,
			},
			cost:     2,
			wantHint: "update payment method to restore subscription",
		},
		{
			name: "canceled hints at resubscribe",
			user: models.User{
				CreditsBalance:     0,
				SubscriptionStatus: strPtr(models.SubscriptionStatusCanceled),
			},
			cost:     2,
			wantHint: "resubscribe or buy credits",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(&tt.user, tt.cost, now)

			if tt.wantHint != "" {
				var denied *DeniedError
				require.ErrorAs(t, err, &denied)
				assert.Equal(t, tt.wantHint, denied.Hint)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type fakeLLM struct {
	answer string
	err    error
}

func (f *fakeLLM) Complete(_ context.Context, _, _ string) (string, models.TokenUsage, error) {
	return f.answer, models.TokenUsage{}, f.err
}

func testMatchingConfig() config.Matching {
	return config.Matching{
		MinCreditCost:     1,
		MaxCreditCost:     5,
		DefaultCreditCost: 1,
	}
}

func TestCostAssessor_AssessCreditCost(t *testing.T) {
	log := slog.New(slog.DiscardHandler)

	tests := []struct {
		name  string
		llm   fakeLLM
		query string
		want  int
	}{
		{
			name:  "plain digit answer",
			llm:   fakeLLM{answer: "3"},
			query: "looking for distribution partners",
			want:  3,
		},
		{
			name:  "digit inside prose",
			llm:   fakeLLM{answer: "I would rate this query a 4 out of 5."},
			query: "complex query",
			want:  4,
		},
		{
			name:  "answer above max is clamped",
			llm:   fakeLLM{answer: "9"},
			query: "query",
			want:  5,
		},
		{
			name:  "zero is clamped to min",
			llm:   fakeLLM{answer: "0"},
			query: "query",
			want:  1,
		},
		{
			name:  "llm error falls back to heuristic",
			llm:   fakeLLM{err: errors.New("timeout")},
			query: "short query",
			want:  1,
		},
		{
			name:  "llm error with long query scales heuristic",
			llm:   fakeLLM{err: errors.New("timeout")},
			query: strings.Repeat("a", 380),
			want:  3,
		},
		{
			name:  "no digit in answer falls back",
			llm:   fakeLLM{answer: "hard to say"},
			query: "short query",
			want:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assessor := NewCostAssessor(&tt.llm, testMatchingConfig(), log)
			got := assessor.AssessCreditCost(context.Background(), tt.query)
			assert.Equal(t, tt.want, got)
		})
	}
}
