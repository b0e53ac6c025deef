// Package urgency classifies how pressing a due date is relative to the
// application's current (possibly virtual) time.
package urgency

import "time"

// Tier is a discrete urgency level, ordered least to most severe.
// Completed sits below every live tier so severity comparisons treat a
// finished task as never notifiable.
type Tier int

const (
	Completed Tier = iota
	Low
	Medium
	High
	Urgent
	Overdue
)

func (t Tier) String() string {
	switch t {
	case Completed:
		return "completed"
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Urgent:
		return "urgent"
	case Overdue:
		return "overdue"
	default:
		return "unknown"
	}
}

// AtLeast reports whether t is as severe as o or more.
func (t Tier) AtLeast(o Tier) bool {
	return t >= o
}

// Classify maps a due date to a tier given the current time. It is pure and
// deterministic. A zero due date is treated as the lowest live tier; callers
// log the malformed record, classification never fails.
func Classify(due time.Time, completed bool, now time.Time) Tier {
	if completed {
		return Completed
	}
	if due.IsZero() {
		return Low
	}
	if due.Before(now) {
		return Overdue
	}

	daysUntilDue := int(due.Sub(now) / (24 * time.Hour))
	switch {
	case daysUntilDue <= 1:
		return Urgent
	case daysUntilDue <= 3:
		return High
	case daysUntilDue <= 7:
		return Medium
	default:
		return Low
	}
}
