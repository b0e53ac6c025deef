package model

import (
	"fmt"
	"time"
)

// NotificationType selects the delivery path for a reminder.
type NotificationType string

const (
	NotifySystem NotificationType = "system"
	NotifyAlert  NotificationType = "alert"
	NotifyEmail  NotificationType = "email"
)

// AdvanceUnit is the unit of a notification's advance offset.
type AdvanceUnit string

const (
	UnitMinute AdvanceUnit = "minute"
	UnitHour   AdvanceUnit = "hour"
	UnitDay    AdvanceUnit = "day"
)

// RepeatType describes how a reminder repeats after its initial fire.
type RepeatType string

const (
	RepeatNone          RepeatType = ""
	RepeatCount         RepeatType = "count"
	RepeatInterval      RepeatType = "interval"
	RepeatUntilResponse RepeatType = "until-response"
)

// Event is a calendar entry with zero or more reminder settings.
type Event struct {
	ID            uint `gorm:"primaryKey"`
	Title         string
	Place         string
	StartDate     time.Time
	EndDate       time.Time
	IsAllDay      bool                  `gorm:"default:false"`
	Notifications []NotificationSetting `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TargetID identifies the event in the reminder scheduler's bookkeeping.
func (e Event) TargetID() string {
	return fmt.Sprintf("event-%d", e.ID)
}

// NotificationSetting configures one reminder attached to an event.
type NotificationSetting struct {
	ID          uint             `gorm:"primaryKey"`
	EventID     uint             `gorm:"index"`
	Type        NotificationType `gorm:"default:system"`
	AdvanceTime int              // 0 means fire at event start
	AdvanceUnit AdvanceUnit      `gorm:"default:minute"`

	RepeatType     RepeatType
	RepeatCount    int // extra fires for RepeatCount
	RepeatInterval int // minutes between fires for RepeatInterval
}

// AdvanceOffset converts the advance time and unit to a duration before
// the event start. Unknown units count as zero, matching a missing offset.
func (n NotificationSetting) AdvanceOffset() time.Duration {
	switch n.AdvanceUnit {
	case UnitMinute:
		return time.Duration(n.AdvanceTime) * time.Minute
	case UnitHour:
		return time.Duration(n.AdvanceTime) * time.Hour
	case UnitDay:
		return time.Duration(n.AdvanceTime) * 24 * time.Hour
	default:
		return 0
	}
}
