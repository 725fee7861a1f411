package clock

import "time"

// Clock allows injecting time into stages and the pipeline deadline.
type Clock interface {
	Now() time.Time
	// Sleep blocks the calling goroutine for d.
	Sleep(d time.Duration)
	// After fires once d has elapsed. It runs on runtime timers, independent of
	// any worker pool.
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

// NewSystem returns a clock backed by the time package.
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

func (systemClock) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

func (systemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

type instantClock struct {
	systemClock
}

// NewInstant returns a clock whose Sleep never blocks (useful for tests). After
// still uses real timers so deadlines keep working.
func NewInstant() Clock {
	return instantClock{}
}

func (instantClock) Sleep(time.Duration) {}
