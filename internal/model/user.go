package model

import "time"

// User is a registered operator; reminders are pushed to their chat.
type User struct {
	ID         uint  `gorm:"primaryKey"`
	TelegramID int64 `gorm:"uniqueIndex"`
	ChatID     int64 `gorm:"index"`
	FirstName  string
	Username   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
