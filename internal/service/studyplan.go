package service

import (
	"context"
	"fmt"
	"time"

	"time-planner/internal/model"
)

// StudyPlan describes a pomodoro-style study session: N cycles of study
// followed by a break, laid out back to back from a start time.
type StudyPlan struct {
	Title       string
	StudyTime   int // minutes of study per cycle
	BreakTime   int // minutes of break per cycle
	TotalCycles int
	StartDate   time.Time
}

// TotalMinutes is the planned duration across all cycles.
func (p StudyPlan) TotalMinutes() int {
	return (p.StudyTime + p.BreakTime) * p.TotalCycles
}

// EndDate is the start date plus the full planned duration.
func (p StudyPlan) EndDate() time.Time {
	return p.StartDate.Add(time.Duration(p.TotalMinutes()) * time.Minute)
}

func (p StudyPlan) validate() error {
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	if p.StudyTime <= 0 || p.BreakTime <= 0 || p.TotalCycles <= 0 {
		return fmt.Errorf("study time, break time and cycles must be positive")
	}
	if p.StartDate.IsZero() {
		return fmt.Errorf("start date is required")
	}
	return nil
}

// StudyPlanService turns a study plan into a calendar event with a reminder
// at session start, so the regular event scheduling pipeline handles it.
type StudyPlanService struct {
	eventSvc *EventService
}

func NewStudyPlanService(eventSvc *EventService) *StudyPlanService {
	return &StudyPlanService{eventSvc: eventSvc}
}

func (s *StudyPlanService) CreatePlan(ctx context.Context, plan StudyPlan) (*model.Event, error) {
	if err := plan.validate(); err != nil {
		return nil, err
	}

	title := fmt.Sprintf("%s (%d × %d+%d min)", plan.Title, plan.TotalCycles, plan.StudyTime, plan.BreakTime)
	return s.eventSvc.CreateEvent(ctx, EventInput{
		Title:     title,
		StartDate: plan.StartDate,
		EndDate:   plan.EndDate(),
		Notifications: []model.NotificationSetting{
			{Type: model.NotifySystem, AdvanceTime: 0, AdvanceUnit: model.UnitMinute},
		},
	})
}
