package models

import "time"

// ExpiryNotification — сообщение о состоянии подписки, публикуемое
// syncer-ом в очередь уведомлений и потребляемое отправителем писем.
type ExpiryNotification struct {
	UserUID   string    `json:"user_uid"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}
