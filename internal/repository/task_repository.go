package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"time-planner/internal/model"
)

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// ListActive returns tasks not yet completed, soonest deadline first.
func (r *TaskRepository) ListActive(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("is_completed = ?", false).
		Order("due_date NULLS LAST, created_at DESC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) FindByID(ctx context.Context, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, taskID).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) MarkCompleted(ctx context.Context, task *model.Task, completedAt time.Time) error {
	task.IsCompleted = true
	task.UpdatedAt = completedAt
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, taskID uint) error {
	if err := r.db.WithContext(ctx).Delete(&model.Task{}, taskID).Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
