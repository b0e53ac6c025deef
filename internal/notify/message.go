package notify

import (
	"fmt"
	"time"

	"time-planner/internal/model"
	"time-planner/internal/urgency"
)

func eventNotification(ev model.Event, setting model.NotificationSetting, isRepeat bool) Notification {
	title := "🗓 " + ev.Title
	if isRepeat {
		title = "🔔 Reminder: " + ev.Title
	}

	body := fmt.Sprintf("%s @ %s", ev.Title, ev.StartDate.Format("15:04"))
	if setting.AdvanceTime > 0 {
		body += fmt.Sprintf(" (in %s)", formatAdvance(setting))
	}
	if ev.Place != "" {
		body += " · " + ev.Place
	}

	return Notification{
		TargetID:           ev.TargetID(),
		Title:              title,
		Body:               body,
		Tag:                ev.TargetID(),
		RequireInteraction: true,
	}
}

// taskNotification builds the urgency-tiered message for a task. The more
// severe tiers demand interaction so the reminder stays visible until the
// user reacts.
func taskNotification(task model.Task, tier urgency.Tier, due time.Time) Notification {
	var (
		title              string
		body               string
		requireInteraction bool
	)
	dueText := due.Format("2006-01-02 15:04")

	switch tier {
	case urgency.Overdue:
		title = "🔴 OVERDUE: " + task.Title
		body = fmt.Sprintf("This task was due %s", dueText)
		requireInteraction = true
	case urgency.Urgent:
		title = "⚠️ URGENT: " + task.Title
		body = "This task is due within the next 24 hours"
		requireInteraction = true
	case urgency.High:
		title = "❗ High priority: " + task.Title
		body = fmt.Sprintf("This task is due in a few days (%s)", dueText)
	default:
		title = "❕ Reminder: " + task.Title
		body = fmt.Sprintf("This task is due %s", dueText)
	}

	return Notification{
		TargetID:           task.TargetID(),
		Title:              title,
		Body:               body,
		Tag:                fmt.Sprintf("%s-%s", task.TargetID(), tier),
		RequireInteraction: requireInteraction,
	}
}

// ClockChangeNotification announces a virtual time jump to the user.
func ClockChangeNotification(now time.Time) Notification {
	return Notification{
		TargetID:           "clock",
		Title:              "🕒 Clock changed",
		Body:               "Current time is now " + now.Format("Monday, 2 January 2006, 15:04"),
		Tag:                "clock-change",
		RequireInteraction: true,
	}
}

func formatAdvance(setting model.NotificationSetting) string {
	if setting.AdvanceTime == 0 {
		return "now"
	}
	unit := string(setting.AdvanceUnit)
	if setting.AdvanceTime != 1 {
		unit += "s"
	}
	return fmt.Sprintf("%d %s", setting.AdvanceTime, unit)
}
