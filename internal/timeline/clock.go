package timeline

import "time"

// Clock supplies wall-clock time to the timeline machinery. It is the only
// external dependency of the scheduler, which keeps every derived value a
// pure function of config + time and makes the controller testable with a
// fake clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the OS wall clock.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}
