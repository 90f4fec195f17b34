package chat

import "time"

// Clock supplies the current time. Injected so tests control timing.
type Clock interface {
	Now() time.Time
}

// TimerHandle cancels a scheduled callback. Stop reports whether the
// callback was stopped before firing.
type TimerHandle interface {
	Stop() bool
}

// Scheduler arms delayed callbacks. The real implementation uses wall-clock
// timers; tests substitute a virtual scheduler to fast-forward time.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) TimerHandle
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// NewRealClock returns a wall-clock Clock.
func NewRealClock() Clock { return realClock{} }

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, fn func()) TimerHandle {
	return time.AfterFunc(d, fn)
}

// NewRealScheduler returns a Scheduler backed by time.AfterFunc.
func NewRealScheduler() Scheduler { return realScheduler{} }
