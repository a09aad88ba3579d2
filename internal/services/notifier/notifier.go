// Package notifier отправляет почтовые уведомления о состоянии подписки,
// потребляя сообщения из очередей RabbitMQ.
package notifier

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/viqihq/viqi-backend/internal/lib/sl"
	"github.com/viqihq/viqi-backend/internal/lib/smtp"
	"github.com/viqihq/viqi-backend/internal/models"
)

// Service отвечает за формирование и отправку писем.
type Service struct {
	transport smtp.TransportInterface
	log       *slog.Logger
}

// New создает новый экземпляр Service.
func New(transport smtp.TransportInterface, log *slog.Logger) *Service {
	return &Service{
		transport: transport,
		log:       log,
	}
}

// SendExpiredNotice уведомляет пользователя об истекшей подписке.
func (s *Service) SendExpiredNotice(body []byte) error {
	var message models.ExpiryNotification
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	to := []string{message.Email}
	subject := "Ваша подписка на ViQi истекла"
	bodyText := fmt.Sprintf(`Здравствуйте, %s!

Ваша подписка на ViQi истекла. Поиск контактов остается доступным,
но раскрытие результатов теперь списывает кредиты с баланса.

Чтобы вернуть безлимитный доступ, продлите подписку в личном кабинете.`,
		message.Username)

	return s.sendEmail(to, subject, bodyText)
}

// SendExpiringNotice уведомляет пользователя о скором окончании подписки.
func (s *Service) SendExpiringNotice(body []byte) error {
	var message models.ExpiryNotification
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	to := []string{message.Email}
	subject := "Подписка на ViQi скоро закончится"
	bodyText := fmt.Sprintf(`Здравствуйте, %s!

Ваша подписка на ViQi заканчивается %s.

Пожалуйста, продлите её заранее, чтобы не потерять доступ к раскрытию
контактов без списания кредитов.`,
		message.Username, message.ExpiresAt.Format("02.01.2006"))

	return s.sendEmail(to, subject, bodyText)
}

func (s *Service) sendEmail(to []string, subject, bodyText string) error {
	msg := strings.Join([]string{
		"From: " + s.transport.GetSMTPUser(),
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(s.transport.GetSMTPUser()); err != nil {
		s.log.Error("failed to set MAIL FROM", "from", s.transport.GetSMTPUser(), "error", sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", "recipient", addr, "error", sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get data writer", sl.Err(err))
		return err
	}

	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}

	if err = wc.Close(); err != nil {
		s.log.Error("failed to close data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", "to", to)
	return nil
}
