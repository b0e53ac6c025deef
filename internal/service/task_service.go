package service

import (
	"context"
	"fmt"
	"time"

	"time-planner/internal/model"
	"time-planner/internal/notify"
	"time-planner/internal/repository"
)

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title       string
	Description string
	DueDate     *time.Time
}

// TaskService wraps task-related business logic and keeps the reminder
// scheduler informed about lifecycle changes.
type TaskService struct {
	taskRepo *repository.TaskRepository
	sched    *notify.Scheduler
}

func NewTaskService(taskRepo *repository.TaskRepository, sched *notify.Scheduler) *TaskService {
	return &TaskService{taskRepo: taskRepo, sched: sched}
}

func (s *TaskService) CreateTask(ctx context.Context, input TaskInput) (*model.Task, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("title is required")
	}

	task := model.Task{
		Title:       input.Title,
		Description: input.Description,
		DueDate:     input.DueDate,
	}
	if err := s.taskRepo.Create(ctx, &task); err != nil {
		return nil, err
	}
	s.sched.CheckTask(task, false)
	return &task, nil
}

func (s *TaskService) ListActive(ctx context.Context) ([]model.Task, error) {
	return s.taskRepo.ListActive(ctx)
}

func (s *TaskService) GetTask(ctx context.Context, taskID uint) (*model.Task, error) {
	return s.taskRepo.FindByID(ctx, taskID)
}

// CompleteTask marks a task as done and drops its outstanding reminders.
func (s *TaskService) CompleteTask(ctx context.Context, taskID uint, completedAt time.Time) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.taskRepo.MarkCompleted(ctx, task, completedAt); err != nil {
		return nil, err
	}
	s.sched.CancelTarget(task.TargetID())
	return task, nil
}

// DeleteTask removes a task completely and cancels its reminders.
func (s *TaskService) DeleteTask(ctx context.Context, taskID uint) error {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return err
	}
	if err := s.taskRepo.Delete(ctx, taskID); err != nil {
		return err
	}
	s.sched.CancelTarget(task.TargetID())
	return nil
}
