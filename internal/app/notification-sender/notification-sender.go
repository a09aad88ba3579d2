// Package notificationsender содержит приложение отправки почтовых
// уведомлений о подписках.
package notificationsender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/viqihq/viqi-backend/internal/config"
	"github.com/viqihq/viqi-backend/internal/lib/smtp"
	"github.com/viqihq/viqi-backend/internal/rabbitmq"
	notifierservice "github.com/viqihq/viqi-backend/internal/services/notifier"
)

// App представляет приложение отправки уведомлений.
type App struct {
	conn            *amqp.Connection
	ch              *amqp.Channel
	notifierService *notifierservice.Service
	logger          *slog.Logger
}

// New создает новый экземпляр приложения отправки уведомлений.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, ch, err := rabbitmq.Connect(cfg.RabbitConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	if err := rabbitmq.SetupQueues(ch); err != nil {
		if closeErr := ch.Close(); closeErr != nil {
			logger.Error("failed to close channel", slog.Any("err", closeErr))
		}
		if closeErr := conn.Close(); closeErr != nil {
			logger.Error("failed to close connection", slog.Any("err", closeErr))
		}
		return nil, fmt.Errorf("failed to setup RabbitMQ queues: %w", err)
	}

	transport := smtp.NewTransport(cfg.SMTP, logger)
	notifierService := notifierservice.New(transport, logger)

	return &App{
		conn:            conn,
		ch:              ch,
		notifierService: notifierService,
		logger:          logger,
	}, nil
}

// Run запускает потребителей очередей уведомлений.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.ch, "subscriptions.expired", a.notifierService.SendExpiredNotice)
	if err != nil {
		a.logger.Error("failed to start subscriptions.expired consumer", slog.Any("err", err))
		return err
	}

	err = rabbitmq.ConsumerMessage(ctx, a.ch, "subscriptions.expiring", a.notifierService.SendExpiringNotice)
	if err != nil {
		a.logger.Error("failed to start subscriptions.expiring consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("notification sender shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}

	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}

	return nil
}
