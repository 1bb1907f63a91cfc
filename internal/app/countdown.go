package app

import "time"

// LowTimeThreshold marks the point where the countdown should draw attention.
const LowTimeThreshold = 5 * time.Minute

// Deadline is the instant an attempt started at startedAt must be submitted by.
func Deadline(startedAt time.Time, limit time.Duration) time.Time {
	return startedAt.Add(limit)
}

// Remaining is derived from the deadline on every call, so a suspended
// process resumes with the right value instead of a drifted counter.
func Remaining(deadline, now time.Time) time.Duration {
	if d := deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}

// RemainingSeconds rounds up so the display only reads 0 once time is really up.
func RemainingSeconds(deadline, now time.Time) int {
	d := Remaining(deadline, now)
	return int((d + time.Second - 1) / time.Second)
}
