package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"time-planner/internal/clock"
	"time-planner/internal/model"
)

// fakeTimers is a deterministic TimerFactory: timers fire only when the
// test advances fake time past their deadline. With honorStop false it
// simulates the race where a timer pops before a cancellation propagates,
// so the fire-time freshness check can be exercised.
type fakeTimers struct {
	mu        sync.Mutex
	now       time.Time
	timers    []*fakeTimer
	honorStop bool
}

type fakeTimer struct {
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

func (t *fakeTimer) Stop() bool {
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func newFakeTimers(start time.Time) *fakeTimers {
	return &fakeTimers{now: start, honorStop: true}
}

func (f *fakeTimers) After(d time.Duration, fn func()) clock.TimerHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{deadline: f.now.Add(d), fn: fn}
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeTimers) advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range f.timers {
			if t.fired || (t.stopped && f.honorStop) || t.deadline.After(target) {
				continue
			}
			if next == nil || t.deadline.Before(next.deadline) {
				next = t
			}
		}
		if next == nil {
			break
		}
		next.fired = true
		f.now = next.deadline
		fn := next.fn
		f.mu.Unlock()
		fn()
		f.mu.Lock()
	}
	f.now = target
	f.mu.Unlock()
}

func (f *fakeTimers) armed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

type captureChannel struct {
	mu    sync.Mutex
	notes []Notification
	fail  bool
}

func (c *captureChannel) Deliver(_ context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("channel down")
	}
	c.notes = append(c.notes, n)
	return nil
}

func (c *captureChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.notes)
}

func (c *captureChannel) last() Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notes[len(c.notes)-1]
}

var testStart = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T) (*clock.TimeMachine, *fakeTimers, *captureChannel, *Scheduler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tm := clock.NewWithWall(func() time.Time { return testStart })
	ft := newFakeTimers(testStart)
	push := &captureChannel{}
	d := NewDispatcher(push, NewAlertChannel(io.Discard), NewEmailChannel(logger), logger)
	s := NewScheduler(tm, ft, d, logger)
	t.Cleanup(s.Close)
	return tm, ft, push, s
}

func eventWith(settings ...model.NotificationSetting) model.Event {
	return model.Event{
		ID:            1,
		Title:         "Standup",
		StartDate:     testStart.Add(30 * time.Minute),
		EndDate:       testStart.Add(time.Hour),
		Notifications: settings,
	}
}

func TestScheduleEventFiresAtAdvanceOffset(t *testing.T) {
	_, ft, push, s := newTestScheduler(t)

	s.ScheduleEvent(eventWith(model.NotificationSetting{
		Type: model.NotifySystem, AdvanceTime: 10, AdvanceUnit: model.UnitMinute,
	}))

	ft.advance(19 * time.Minute)
	if push.count() != 0 {
		t.Fatalf("fired %d notifications before the fire time", push.count())
	}

	ft.advance(time.Minute)
	if push.count() != 1 {
		t.Fatalf("expected 1 notification, got %d", push.count())
	}
	if got := push.last().Tag; got != "event-1" {
		t.Errorf("tag = %q, want event-1", got)
	}
}

func TestZeroAdvanceFiresAtEventStart(t *testing.T) {
	_, ft, push, s := newTestScheduler(t)

	s.ScheduleEvent(eventWith(model.NotificationSetting{Type: model.NotifySystem}))

	ft.advance(30 * time.Minute)
	if push.count() != 1 {
		t.Fatalf("expected fire at event start, got %d", push.count())
	}
}

func TestPastFireTimesAreSkipped(t *testing.T) {
	_, ft, push, s := newTestScheduler(t)

	ev := eventWith(model.NotificationSetting{
		Type: model.NotifySystem, AdvanceTime: 1, AdvanceUnit: model.UnitHour,
	})
	s.ScheduleEvent(ev)

	if n := s.PendingCount(); n != 0 {
		t.Fatalf("expected no timers for a past fire time, got %d", n)
	}
	ft.advance(2 * time.Hour)
	if push.count() != 0 {
		t.Fatal("nothing should fire retroactively")
	}
}

func TestRepeatCountSchedulesExtraFiresOneMinuteApart(t *testing.T) {
	_, ft, push, s := newTestScheduler(t)

	s.ScheduleEvent(eventWith(model.NotificationSetting{
		Type: model.NotifySystem, AdvanceTime: 10, AdvanceUnit: model.UnitMinute,
		RepeatType: model.RepeatCount, RepeatCount: 3,
	}))

	if n := s.PendingCount(); n != 4 {
		t.Fatalf("expected 1 initial + 3 repeats, got %d pending", n)
	}

	ft.advance(20 * time.Minute)
	if push.count() != 1 {
		t.Fatalf("expected only the initial fire, got %d", push.count())
	}
	ft.advance(3 * time.Minute)
	if push.count() != 4 {
		t.Fatalf("expected all repeats fired, got %d", push.count())
	}
	if got := push.last().Title; got != "🔔 Reminder: Standup" {
		t.Errorf("repeat title = %q", got)
	}
}

func TestRepeatIntervalStopsBeforeEventStart(t *testing.T) {
	_, ft, push, s := newTestScheduler(t)

	// Initial fire 5 minutes before start, then every 2 minutes. Repeats
	// land at -3min and -1min; nothing at or after the event start.
	s.ScheduleEvent(eventWith(model.NotificationSetting{
		Type: model.NotifySystem, AdvanceTime: 5, AdvanceUnit: model.UnitMinute,
		RepeatType: model.RepeatInterval, RepeatInterval: 2,
	}))

	if n := s.PendingCount(); n != 3 {
		t.Fatalf("expected 3 timers, got %d", n)
	}
	ft.advance(2 * time.Hour)
	if push.count() != 3 {
		t.Fatalf("expected 3 fires, got %d", push.count())
	}
}

func TestUntilResponseStopsAfterAcknowledgment(t *testing.T) {
	_, ft, push, s := newTestScheduler(t)

	// Initial at -8min from start, repeats every 2 minutes: -6, -4, -2.
	s.ScheduleEvent(eventWith(model.NotificationSetting{
		Type: model.NotifySystem, AdvanceTime: 8, AdvanceUnit: model.UnitMinute,
		RepeatType: model.RepeatUntilResponse,
	}))

	ft.advance(24 * time.Minute) // initial + first repeat
	if push.count() != 2 {
		t.Fatalf("expected 2 fires before ack, got %d", push.count())
	}

	s.Acknowledge("event-1")
	ft.advance(time.Hour)
	if push.count() != 2 {
		t.Fatalf("repeats must stop after acknowledgment, got %d", push.count())
	}
}

func TestCancelTargetIsIdempotent(t *testing.T) {
	_, ft, push, s := newTestScheduler(t)

	s.ScheduleEvent(eventWith(model.NotificationSetting{
		Type: model.NotifySystem, AdvanceTime: 10, AdvanceUnit: model.UnitMinute,
	}))

	s.CancelTarget("event-1")
	s.CancelTarget("event-1") // no-op
	s.CancelTarget("event-99")

	if n := s.PendingCount(); n != 0 {
		t.Fatalf("expected no pending timers, got %d", n)
	}
	ft.advance(time.Hour)
	if push.count() != 0 {
		t.Fatal("cancelled reminder fired")
	}
}

func TestTimeJumpCancelsPendingTimers(t *testing.T) {
	tm, ft, push, s := newTestScheduler(t)

	s.ScheduleEvent(eventWith(model.NotificationSetting{
		Type: model.NotifySystem, AdvanceTime: 20, AdvanceUnit: model.UnitMinute,
	}))
	if n := s.PendingCount(); n != 1 {
		t.Fatalf("expected 1 pending timer, got %d", n)
	}

	tm.SetTime(testStart.Add(2 * time.Hour))

	if n := s.PendingCount(); n != 0 {
		t.Fatalf("jump must cancel pending timers, got %d", n)
	}
	ft.advance(time.Hour)
	if push.count() != 0 {
		t.Fatal("stale timer fired after jump")
	}
}

func TestSmallTickDoesNotInvalidate(t *testing.T) {
	tm, _, _, s := newTestScheduler(t)

	s.ScheduleEvent(eventWith(model.NotificationSetting{
		Type: model.NotifySystem, AdvanceTime: 20, AdvanceUnit: model.UnitMinute,
	}))

	tm.SetTime(testStart.Add(30 * time.Second))
	if n := s.PendingCount(); n != 1 {
		t.Fatalf("sub-minute change cancelled timers, pending = %d", n)
	}
}

func TestStaleFireAfterJumpIsDropped(t *testing.T) {
	tm, ft, push, s := newTestScheduler(t)
	ft.honorStop = false // timer pops even though Stop was called

	s.ScheduleEvent(eventWith(model.NotificationSetting{
		Type: model.NotifySystem, AdvanceTime: 20, AdvanceUnit: model.UnitMinute,
	}))
	tm.SetTime(testStart.Add(2 * time.Hour))

	ft.advance(time.Hour)
	if push.count() != 0 {
		t.Fatal("fire-time freshness check failed to drop a stale timer")
	}
}

func TestJumpInvokesInvalidateCallback(t *testing.T) {
	tm, _, _, s := newTestScheduler(t)

	var gotTime time.Time
	calls := 0
	s.OnInvalidate(func(now time.Time) {
		gotTime = now
		calls++
	})

	jumpTo := testStart.Add(-3 * time.Hour) // backward jumps count too
	tm.SetTime(jumpTo)

	if calls != 1 || !gotTime.Equal(jumpTo) {
		t.Fatalf("invalidate callback: calls=%d time=%v", calls, gotTime)
	}
}

func taskDue(due time.Time) model.Task {
	return model.Task{ID: 1, Title: "Write report", DueDate: &due}
}

func TestCheckTaskDedupesPerDay(t *testing.T) {
	_, _, push, s := newTestScheduler(t)

	task := taskDue(testStart.Add(2 * time.Hour)) // urgent

	s.CheckTask(task, false)
	s.CheckTask(task, false)
	if push.count() != 1 {
		t.Fatalf("expected a single fire per day, got %d", push.count())
	}

	s.CheckTask(task, true)
	if push.count() != 2 {
		t.Fatalf("forceNotify must always fire, got %d", push.count())
	}
}

func TestCheckTaskRefiresOnNewVirtualDay(t *testing.T) {
	tm, _, push, s := newTestScheduler(t)

	task := taskDue(testStart.Add(-time.Hour)) // overdue
	s.CheckTask(task, false)

	tm.SetTime(testStart.Add(24 * time.Hour))
	s.CheckTask(task, false)

	if push.count() != 2 {
		t.Fatalf("new virtual day should fire again, got %d", push.count())
	}
}

func TestCheckTaskBelowMediumStaysSilent(t *testing.T) {
	_, _, push, s := newTestScheduler(t)

	s.CheckTask(taskDue(testStart.Add(30*24*time.Hour)), false) // low
	s.CheckTask(model.Task{ID: 2, Title: "No due date"}, false) // malformed -> low
	s.CheckTask(model.Task{ID: 3, Title: "Done", IsCompleted: true}, false)

	if push.count() != 0 {
		t.Fatalf("expected silence, got %d notifications", push.count())
	}
}

func TestRenotifyEmitsRecheckSignal(t *testing.T) {
	_, ft, push, s := newTestScheduler(t)

	var rechecked []string
	s.OnRecheck(func(targetID string) { rechecked = append(rechecked, targetID) })

	s.CheckTask(taskDue(testStart.Add(-time.Hour)), false) // overdue, renotify 30m
	if push.count() != 1 {
		t.Fatalf("expected initial fire, got %d", push.count())
	}

	ft.advance(30 * time.Minute)
	if len(rechecked) != 1 || rechecked[0] != "task-1" {
		t.Fatalf("expected recheck for task-1, got %v", rechecked)
	}
	// The recheck itself must not have fired anything.
	if push.count() != 1 {
		t.Fatalf("renotify fired directly, count=%d", push.count())
	}
}

func TestSnoozeSuppressesThenRechecks(t *testing.T) {
	_, ft, push, s := newTestScheduler(t)

	task := taskDue(testStart.Add(-time.Hour)) // overdue
	s.OnRecheck(func(targetID string) {
		// Fresh state still overdue: the app layer re-fires with force.
		s.CheckTask(task, true)
	})

	s.CheckTask(task, false)
	if push.count() != 1 {
		t.Fatalf("expected initial fire, got %d", push.count())
	}
	tag := push.last().Tag

	s.Snooze(tag, 15*time.Minute)

	ft.advance(14 * time.Minute)
	s.CheckTask(task, false) // periodic sweep during the snooze window
	if push.count() != 1 {
		t.Fatalf("snoozed tag fired during suppression, count=%d", push.count())
	}

	ft.advance(time.Minute) // wake -> recheck -> forced fire
	if push.count() != 2 {
		t.Fatalf("expected re-fire after snooze expiry, got %d", push.count())
	}
}

func TestSnoozeCompletedTaskStaysQuiet(t *testing.T) {
	_, ft, push, s := newTestScheduler(t)

	task := taskDue(testStart.Add(-time.Hour))
	s.OnRecheck(func(targetID string) {
		done := task
		done.IsCompleted = true
		s.CheckTask(done, true)
	})

	s.CheckTask(task, false)
	s.Snooze(push.last().Tag, 15*time.Minute)

	ft.advance(time.Hour)
	if push.count() != 1 {
		t.Fatalf("completed task re-fired after snooze, count=%d", push.count())
	}
}

func TestSnoozeSupersededByNewerSnooze(t *testing.T) {
	_, ft, _, s := newTestScheduler(t)

	var rechecks int
	s.OnRecheck(func(string) { rechecks++ })

	// Medium tier: fires but arms no renotify timer of its own.
	s.CheckTask(taskDue(testStart.Add(5*24*time.Hour)), false)
	tag := "task-1-medium"

	s.Snooze(tag, 10*time.Minute)
	s.Snooze(tag, 40*time.Minute) // replaces the first snooze

	ft.advance(15 * time.Minute)
	if rechecks != 0 {
		t.Fatalf("superseded snooze woke up, rechecks=%d", rechecks)
	}
	ft.advance(30 * time.Minute)
	if rechecks != 1 {
		t.Fatalf("expected one wake from the newer snooze, got %d", rechecks)
	}
}
