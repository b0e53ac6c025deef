package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"time-planner/internal/model"
)

// EventRepository handles CRUD for calendar events and their reminder settings.
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Create(ctx context.Context, event *model.Event) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (r *EventRepository) FindByID(ctx context.Context, eventID uint) (*model.Event, error) {
	var event model.Event
	if err := r.db.WithContext(ctx).Preload("Notifications").First(&event, eventID).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// ListUpcoming returns events starting after the given moment, reminder
// settings preloaded, earliest first.
func (r *EventRepository) ListUpcoming(ctx context.Context, after time.Time) ([]model.Event, error) {
	var events []model.Event
	if err := r.db.WithContext(ctx).Preload("Notifications").
		Where("start_date > ?", after).
		Order("start_date").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *EventRepository) Delete(ctx context.Context, eventID uint) error {
	if err := r.db.WithContext(ctx).Select("Notifications").
		Delete(&model.Event{ID: eventID}).Error; err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}
