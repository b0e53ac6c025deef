package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"time-planner/internal/clock"
	"time-planner/internal/model"
	"time-planner/internal/urgency"
)

type reminderKind int

const (
	reminderInitial reminderKind = iota
	reminderRepeat
)

// reminder is one outstanding timer for a target.
type reminder struct {
	targetID   string
	fireAt     time.Time
	kind       reminderKind
	generation uint64
	handle     clock.TimerHandle
}

// dedupeKey limits firing to once per target, urgency tier and virtual
// calendar day.
type dedupeKey struct {
	targetID string
	tier     urgency.Tier
	day      string
}

type snoozeEntry struct {
	tag    string
	wakeAt time.Time
	handle clock.TimerHandle
}

// Scheduler owns the set of outstanding reminders. It reads "now" from the
// TimeMachine, watches it for discontinuous jumps, classifies task urgency
// and hands due notifications to the Dispatcher. All state is in-memory and
// resets with the process.
type Scheduler struct {
	clock    *clock.TimeMachine
	timers   clock.TimerFactory
	dispatch *Dispatcher
	log      *slog.Logger

	mu         sync.Mutex
	pending    map[string][]*reminder
	fired      map[dedupeKey]struct{}
	snoozes    map[string]*snoozeEntry
	acked      map[string]struct{}
	tagTargets map[string]string
	generation uint64
	lastSeen   time.Time

	onInvalidate func(time.Time)
	onRecheck    func(targetID string)
	unsubscribe  func()
}

// NewScheduler wires a scheduler to the time machine. Callers should set
// OnInvalidate and OnRecheck before any scheduling happens.
func NewScheduler(tm *clock.TimeMachine, timers clock.TimerFactory, dispatch *Dispatcher, log *slog.Logger) *Scheduler {
	s := &Scheduler{
		clock:      tm,
		timers:     timers,
		dispatch:   dispatch,
		log:        log,
		pending:    make(map[string][]*reminder),
		fired:      make(map[dedupeKey]struct{}),
		snoozes:    make(map[string]*snoozeEntry),
		acked:      make(map[string]struct{}),
		tagTargets: make(map[string]string),
		lastSeen:   tm.Now(),
	}
	s.unsubscribe = tm.Subscribe(s.timeChanged)
	return s
}

// OnInvalidate registers the callback invoked after a time jump has
// cancelled all pending timers. The callback is expected to re-schedule
// live targets against the new time base.
func (s *Scheduler) OnInvalidate(fn func(time.Time)) {
	s.mu.Lock()
	s.onInvalidate = fn
	s.mu.Unlock()
}

// OnRecheck registers the callback invoked when a snooze or renotify timer
// expires. The callback re-evaluates the target against fresh state; the
// scheduler never re-fires a notification from stale data on its own.
func (s *Scheduler) OnRecheck(fn func(targetID string)) {
	s.mu.Lock()
	s.onRecheck = fn
	s.mu.Unlock()
}

// Close detaches from the time machine and drops all pending timers.
func (s *Scheduler) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.CancelAll()
}

// timeChanged runs on every time machine change. Anything beyond a minute
// in either direction is a jump: every pending timer was computed as a
// wall-clock delta against the old "now" and is meaningless, so all of them
// are cancelled and the generation counter is bumped. Timers already past
// Stop() notice the stale generation at fire time and drop themselves.
func (s *Scheduler) timeChanged(now time.Time) {
	s.mu.Lock()
	delta := now.Sub(s.lastSeen)
	s.lastSeen = now
	if delta >= -time.Minute && delta <= time.Minute {
		s.mu.Unlock()
		return
	}
	cancelled := s.cancelAllLocked()
	s.generation++
	cb := s.onInvalidate
	s.mu.Unlock()

	s.log.Info("time jump, pending reminders invalidated", "delta", delta, "cancelled", cancelled)
	if cb != nil {
		cb(now)
	}
}

// ScheduleEvent registers timers for every reminder setting on the event,
// replacing whatever was scheduled for it before. Fire times already in the
// past are skipped; nothing fires retroactively.
func (s *Scheduler) ScheduleEvent(ev model.Event) {
	targetID := ev.TargetID()
	s.CancelTarget(targetID)

	now := s.clock.Now()
	start := ev.StartDate

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, setting := range ev.Notifications {
		fireAt := start.Add(-setting.AdvanceOffset())
		if fireAt.Before(now) {
			continue
		}
		s.scheduleEventFireLocked(ev, setting, fireAt, now, reminderInitial)

		for _, at := range repeatTimes(setting, fireAt, start) {
			if at.Before(now) {
				continue
			}
			s.scheduleEventFireLocked(ev, setting, at, now, reminderRepeat)
		}
	}
}

// ScheduleAll replaces the schedule for every given event.
func (s *Scheduler) ScheduleAll(events []model.Event) {
	for _, ev := range events {
		s.ScheduleEvent(ev)
	}
}

// repeatTimes expands a repeat setting into extra fire times on top of the
// initial fire. The interval and until-response variants stop strictly
// before the event start; nothing fires once the event has begun.
func repeatTimes(setting model.NotificationSetting, fireAt, start time.Time) []time.Time {
	var times []time.Time
	switch setting.RepeatType {
	case model.RepeatCount:
		for i := 1; i <= setting.RepeatCount; i++ {
			times = append(times, fireAt.Add(time.Duration(i)*time.Minute))
		}
	case model.RepeatInterval:
		if setting.RepeatInterval <= 0 {
			break
		}
		step := time.Duration(setting.RepeatInterval) * time.Minute
		for at := fireAt.Add(step); at.Before(start); at = at.Add(step) {
			times = append(times, at)
		}
	case model.RepeatUntilResponse:
		for at := fireAt.Add(2 * time.Minute); at.Before(start); at = at.Add(2 * time.Minute) {
			times = append(times, at)
		}
	}
	return times
}

func (s *Scheduler) scheduleEventFireLocked(ev model.Event, setting model.NotificationSetting, fireAt, now time.Time, kind reminderKind) {
	r := &reminder{
		targetID:   ev.TargetID(),
		fireAt:     fireAt,
		kind:       kind,
		generation: s.generation,
	}
	r.handle = s.timers.After(fireAt.Sub(now), func() {
		s.fireEvent(r, ev, setting)
	})
	s.pending[r.targetID] = append(s.pending[r.targetID], r)
}

// fireEvent runs when an event reminder timer pops. The freshness check
// happens here, at fire time: a stale generation or a reminder no longer in
// the pending set means the fire was invalidated and is a silent no-op.
func (s *Scheduler) fireEvent(r *reminder, ev model.Event, setting model.NotificationSetting) {
	tag := ev.TargetID()

	s.mu.Lock()
	if r.generation != s.generation || !s.removeLocked(r) {
		s.mu.Unlock()
		return
	}
	if setting.RepeatType == model.RepeatUntilResponse {
		if _, ok := s.acked[tag]; ok {
			s.mu.Unlock()
			return
		}
	}
	if s.suppressedLocked(tag) {
		s.mu.Unlock()
		return
	}
	s.tagTargets[tag] = r.targetID
	s.mu.Unlock()

	s.dispatch.Dispatch(context.Background(), setting.Type, eventNotification(ev, setting, r.kind == reminderRepeat))
}

// CheckTask fires a notification for the task if its urgency clears the
// medium bar and nothing fired for the same target, tier and virtual day
// yet. force bypasses the dedupe record (used after time jumps and snooze
// wake-ups). Safe to call repeatedly; it is idempotent per dedupe key.
func (s *Scheduler) CheckTask(task model.Task, force bool) {
	if task.IsCompleted {
		return
	}
	now := s.clock.Now()

	var due time.Time
	if task.DueDate != nil {
		due = *task.DueDate
	} else {
		s.log.Warn("task has no due date, treating as low urgency", "task", task.ID)
	}

	tier := urgency.Classify(due, task.IsCompleted, now)
	if !tier.AtLeast(urgency.Medium) {
		return
	}

	targetID := task.TargetID()
	tag := fmt.Sprintf("%s-%s", targetID, tier)
	key := dedupeKey{targetID: targetID, tier: tier, day: now.Format("2006-01-02")}

	s.mu.Lock()
	if !force {
		if s.suppressedLocked(tag) {
			s.mu.Unlock()
			return
		}
		if _, done := s.fired[key]; done {
			s.mu.Unlock()
			return
		}
	}
	s.fired[key] = struct{}{}
	s.tagTargets[tag] = targetID
	s.scheduleRenotifyLocked(targetID, tier, now)
	s.mu.Unlock()

	s.dispatch.Dispatch(context.Background(), model.NotifySystem, taskNotification(task, tier, due))
}

// scheduleRenotifyLocked arms the tier's renotify timer. It emits a
// re-check signal rather than re-firing directly, so the target's latest
// state decides whether another notification is warranted.
func (s *Scheduler) scheduleRenotifyLocked(targetID string, tier urgency.Tier, now time.Time) {
	interval := renotifyInterval(tier)
	if interval == 0 {
		return
	}
	r := &reminder{
		targetID:   targetID,
		fireAt:     now.Add(interval),
		kind:       reminderRepeat,
		generation: s.generation,
	}
	r.handle = s.timers.After(interval, func() {
		s.fireRecheck(r)
	})
	s.pending[targetID] = append(s.pending[targetID], r)
}

func (s *Scheduler) fireRecheck(r *reminder) {
	s.mu.Lock()
	if r.generation != s.generation || !s.removeLocked(r) {
		s.mu.Unlock()
		return
	}
	cb := s.onRecheck
	s.mu.Unlock()

	if cb != nil {
		cb(r.targetID)
	}
}

func renotifyInterval(tier urgency.Tier) time.Duration {
	switch tier {
	case urgency.Overdue:
		return 30 * time.Minute
	case urgency.Urgent:
		return time.Hour
	case urgency.High:
		return 2 * time.Hour
	default:
		return 0
	}
}

// Snooze suppresses the tag until the wake timer fires, then emits a
// re-check signal. A new snooze for the same tag supersedes the old one.
// The wake never re-fires the notification itself.
func (s *Scheduler) Snooze(tag string, d time.Duration) {
	s.mu.Lock()
	if old, ok := s.snoozes[tag]; ok {
		old.handle.Stop()
		delete(s.snoozes, tag)
	}
	e := &snoozeEntry{tag: tag, wakeAt: s.clock.Now().Add(d)}
	e.handle = s.timers.After(d, func() {
		s.snoozeWake(tag, e)
	})
	s.snoozes[tag] = e
	s.mu.Unlock()

	s.log.Info("snoozed", "tag", tag, "until", e.wakeAt)
}

func (s *Scheduler) snoozeWake(tag string, e *snoozeEntry) {
	s.mu.Lock()
	if s.snoozes[tag] != e { // superseded
		s.mu.Unlock()
		return
	}
	delete(s.snoozes, tag)
	targetID := s.tagTargets[tag]
	cb := s.onRecheck
	s.mu.Unlock()

	if cb != nil && targetID != "" {
		cb(targetID)
	}
}

// Acknowledge records a user response for the tag: until-response repeats
// stop and any snooze for the tag is dropped.
func (s *Scheduler) Acknowledge(tag string) {
	s.mu.Lock()
	s.acked[tag] = struct{}{}
	if e, ok := s.snoozes[tag]; ok {
		e.handle.Stop()
		delete(s.snoozes, tag)
	}
	s.mu.Unlock()
}

// CancelTarget stops every pending timer for the target. Cancelling an
// unknown or already-fired target is a no-op.
func (s *Scheduler) CancelTarget(targetID string) {
	s.mu.Lock()
	for _, r := range s.pending[targetID] {
		r.handle.Stop()
	}
	delete(s.pending, targetID)
	s.mu.Unlock()
}

// CancelAll stops every pending timer for every target.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	s.cancelAllLocked()
	s.mu.Unlock()
}

func (s *Scheduler) cancelAllLocked() int {
	n := 0
	for id, rs := range s.pending {
		for _, r := range rs {
			r.handle.Stop()
			n++
		}
		delete(s.pending, id)
	}
	return n
}

// PendingCount returns the number of outstanding timers across all targets.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rs := range s.pending {
		n += len(rs)
	}
	return n
}

// suppressedLocked reports whether the tag is under an active snooze. A
// snooze whose wake time has virtually passed no longer suppresses, even if
// its wall-clock timer has not popped yet.
func (s *Scheduler) suppressedLocked(tag string) bool {
	e, ok := s.snoozes[tag]
	return ok && e.wakeAt.After(s.clock.Now())
}

// removeLocked takes r out of the pending set, reporting whether it was
// still there. A missing reminder was cancelled after its timer popped.
func (s *Scheduler) removeLocked(r *reminder) bool {
	rs := s.pending[r.targetID]
	for i, cand := range rs {
		if cand == r {
			rs = append(rs[:i], rs[i+1:]...)
			if len(rs) == 0 {
				delete(s.pending, r.targetID)
			} else {
				s.pending[r.targetID] = rs
			}
			return true
		}
	}
	return false
}
