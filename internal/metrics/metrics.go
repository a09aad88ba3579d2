// Package metrics регистрирует счётчики Prometheus для основных событий
// жизненного цикла матчей и раскрытий.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MatchesCreated — количество созданных матчей (превью).
	MatchesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "viqi_matches_created_total",
		Help: "Total number of match previews created.",
	})

	// Reveals — количество успешных раскрытий с разбивкой по методу оплаты.
	Reveals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viqi_reveals_total",
		Help: "Total number of successful reveals by payment method.",
	}, []string{"method"})

	// EntitlementDenied — количество отказов в раскрытии.
	EntitlementDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "viqi_entitlement_denied_total",
		Help: "Total number of reveals denied for lack of credits or subscription.",
	})

	// LLMFallbacks — количество запросов, обслуженных запасными рекомендациями.
	LLMFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "viqi_llm_fallbacks_total",
		Help: "Total number of match requests served from fallback recommendations.",
	})
)
