package service

import (
	"context"
	"fmt"
	"time"

	"time-planner/internal/model"
	"time-planner/internal/notify"
	"time-planner/internal/repository"
)

// EventInput represents data required to create a calendar event.
type EventInput struct {
	Title         string
	Place         string
	StartDate     time.Time
	EndDate       time.Time
	Notifications []model.NotificationSetting
}

// EventService wraps event business logic; created events get their
// reminders scheduled immediately, deleted ones get them cancelled.
type EventService struct {
	eventRepo *repository.EventRepository
	sched     *notify.Scheduler
}

func NewEventService(eventRepo *repository.EventRepository, sched *notify.Scheduler) *EventService {
	return &EventService{eventRepo: eventRepo, sched: sched}
}

func (s *EventService) CreateEvent(ctx context.Context, input EventInput) (*model.Event, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if input.StartDate.IsZero() {
		return nil, fmt.Errorf("start date is required")
	}
	end := input.EndDate
	if end.IsZero() {
		end = input.StartDate.Add(time.Hour)
	}

	event := model.Event{
		Title:         input.Title,
		Place:         input.Place,
		StartDate:     input.StartDate,
		EndDate:       end,
		Notifications: input.Notifications,
	}
	if err := s.eventRepo.Create(ctx, &event); err != nil {
		return nil, err
	}
	s.sched.ScheduleEvent(event)
	return &event, nil
}

func (s *EventService) ListUpcoming(ctx context.Context, after time.Time) ([]model.Event, error) {
	return s.eventRepo.ListUpcoming(ctx, after)
}

func (s *EventService) DeleteEvent(ctx context.Context, eventID uint) error {
	event, err := s.eventRepo.FindByID(ctx, eventID)
	if err != nil {
		return err
	}
	if err := s.eventRepo.Delete(ctx, eventID); err != nil {
		return err
	}
	s.sched.CancelTarget(event.TargetID())
	return nil
}
