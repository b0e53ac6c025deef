package clock

import "time"

// TimerHandle is a cancellable pending callback. Stop reports whether the
// callback was prevented from running.
type TimerHandle interface {
	Stop() bool
}

// TimerFactory schedules deferred callbacks. The scheduler depends on this
// interface instead of time.AfterFunc so tests can drive fires by hand.
type TimerFactory interface {
	After(d time.Duration, fn func()) TimerHandle
}

// SystemTimers is the production TimerFactory backed by the runtime timer.
type SystemTimers struct{}

func (SystemTimers) After(d time.Duration, fn func()) TimerHandle {
	return time.AfterFunc(d, fn)
}
