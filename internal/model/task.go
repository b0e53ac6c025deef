package model

import (
	"fmt"
	"time"
)

// Task represents a single item in the planner with an optional due date.
type Task struct {
	ID          uint `gorm:"primaryKey"`
	Title       string
	Description string
	DueDate     *time.Time
	IsCompleted bool `gorm:"default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TargetID identifies the task in the reminder scheduler's bookkeeping.
func (t Task) TargetID() string {
	return fmt.Sprintf("task-%d", t.ID)
}
