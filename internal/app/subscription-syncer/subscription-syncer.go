// Package subscriptionsyncer содержит фоновое приложение сверки подписок.
package subscriptionsyncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/viqihq/viqi-backend/internal/cache"
	"github.com/viqihq/viqi-backend/internal/config"
	"github.com/viqihq/viqi-backend/internal/rabbitmq"
	"github.com/viqihq/viqi-backend/internal/services/metering"
	subscriptionservice "github.com/viqihq/viqi-backend/internal/services/subscription"
	"github.com/viqihq/viqi-backend/internal/storage/repository"
)

// App представляет приложение сверки подписок.
type App struct {
	subscriptionService *subscriptionservice.Service
	conn                *amqp.Connection
	ch                  *amqp.Channel
	interval            time.Duration
	logger              *slog.Logger
}

func waitForDB(ctx context.Context, db *repository.Storage) error {
	for range 10 {
		if err := db.DB.PingContext(ctx); err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает новый экземпляр приложения сверки подписок.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, ch, err := rabbitmq.Connect(cfg.RabbitConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	if err := rabbitmq.SetupQueues(ch); err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ queues: %w", err)
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	if err := waitForDB(ctx, db); err != nil {
		closeResources(ch, conn, logger)
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	meteringService := metering.New(cfg.Stripe.SecretKey, cacheRedis, logger)
	subscriptionService := subscriptionservice.New(db, meteringService, logger)

	return &App{
		subscriptionService: subscriptionService,
		conn:                conn,
		ch:                  ch,
		interval:            cfg.Syncer.Interval,
		logger:              logger,
	}, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", "error", err)
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", "error", err)
		}
	}
}

// Run запускает периодическую сверку подписок с биллингом.
func (a *App) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.subscriptionService.RunCleanup(ctx, a.ch)

	for {
		select {
		case <-ticker.C:
			a.subscriptionService.RunCleanup(ctx, a.ch)
		case <-ctx.Done():
			a.logger.Info("shutting down subscription syncer")

			if err := a.ch.Close(); err != nil {
				a.logger.Error("failed to close channel", slog.Any("err", err))
			}

			if err := a.conn.Close(); err != nil {
				a.logger.Error("failed to close connection", slog.Any("err", err))
			}

			return nil
		}
	}
}
