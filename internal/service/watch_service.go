package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"time-planner/internal/clock"
	"time-planner/internal/model"
	"time-planner/internal/notify"
	"time-planner/internal/repository"
)

// WatchService keeps the reminder scheduler in sync with the store and the
// time machine: it loads live targets, schedules them, reschedules
// everything after a time jump and re-evaluates single targets when a
// snooze or renotify timer asks for it.
type WatchService struct {
	taskRepo  *repository.TaskRepository
	eventRepo *repository.EventRepository
	sched     *notify.Scheduler
	dispatch  *notify.Dispatcher
	tm        *clock.TimeMachine
	log       *slog.Logger
}

func NewWatchService(taskRepo *repository.TaskRepository, eventRepo *repository.EventRepository,
	sched *notify.Scheduler, dispatch *notify.Dispatcher, tm *clock.TimeMachine, log *slog.Logger) *WatchService {
	s := &WatchService{
		taskRepo:  taskRepo,
		eventRepo: eventRepo,
		sched:     sched,
		dispatch:  dispatch,
		tm:        tm,
		log:       log,
	}
	sched.OnInvalidate(s.timeJumped)
	sched.OnRecheck(s.recheckTarget)
	return s
}

// Resync replaces the whole reminder schedule from current store state and
// re-evaluates every active task's urgency.
func (s *WatchService) Resync(ctx context.Context) error {
	now := s.tm.Now()

	events, err := s.eventRepo.ListUpcoming(ctx, now)
	if err != nil {
		return err
	}
	s.sched.CancelAll()
	s.sched.ScheduleAll(events)
	s.log.Info("schedule rebuilt", "events", len(events), "now", now)

	return s.Sweep(ctx)
}

// Sweep re-checks every active task against the current time. Dedupe in the
// scheduler makes this cheap to run periodically.
func (s *WatchService) Sweep(ctx context.Context) error {
	tasks, err := s.taskRepo.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		s.sched.CheckTask(task, false)
	}
	return nil
}

// timeJumped runs after the scheduler discarded all pending timers:
// announce the new time, then rebuild against the new "now". Failures are
// logged, never raised; the next sweep retries.
func (s *WatchService) timeJumped(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.dispatch.Dispatch(ctx, model.NotifySystem, notify.ClockChangeNotification(now))
	if err := s.Resync(ctx); err != nil {
		s.log.Error("resync after time jump failed", "error", err)
	}
}

// recheckTarget re-evaluates one target from fresh store state. A task
// re-fires with force (the dedupe record already holds today's fire); an
// event is rescheduled wholesale.
func (s *WatchService) recheckTarget(targetID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	kind, id, ok := splitTargetID(targetID)
	if !ok {
		s.log.Warn("malformed target id on recheck", "target", targetID)
		return
	}

	switch kind {
	case "task":
		task, err := s.taskRepo.FindByID(ctx, id)
		if err != nil {
			s.log.Warn("recheck: task not found", "target", targetID, "error", err)
			return
		}
		s.sched.CheckTask(*task, true)
	case "event":
		event, err := s.eventRepo.FindByID(ctx, id)
		if err != nil {
			s.log.Warn("recheck: event not found", "target", targetID, "error", err)
			s.sched.CancelTarget(targetID)
			return
		}
		s.sched.ScheduleEvent(*event)
	}
}

func splitTargetID(targetID string) (kind string, id uint, ok bool) {
	kind, raw, found := strings.Cut(targetID, "-")
	if !found {
		return "", 0, false
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return "", 0, false
	}
	return kind, uint(n), true
}
