package availability

import (
	"time"

	"quizpoint/internal/domain"
)

// Label names the availability of a quiz for catalog views.
type Label string

const (
	LabelDraft    Label = "draft"
	LabelClosed   Label = "closed"
	LabelUpcoming Label = "upcoming"
	LabelActive   Label = "active"
	LabelExpired  Label = "expired"
)

// Status is the outcome of evaluating a participation window.
// Exactly one of IsAvailable, IsUpcoming and IsExpired is true.
type Status struct {
	IsAvailable bool   `json:"isAvailable"`
	IsUpcoming  bool   `json:"isUpcoming"`
	IsExpired   bool   `json:"isExpired"`
	Message     string `json:"message"`
}

// Label returns the window-only label of the status.
func (s Status) Label() Label {
	switch {
	case s.IsUpcoming:
		return LabelUpcoming
	case s.IsExpired:
		return LabelExpired
	default:
		return LabelActive
	}
}

// Evaluate maps the window [start, end] and now to a status. Both bounds are inclusive.
func Evaluate(start, end, now time.Time) Status {
	if now.Before(start) {
		return Status{
			IsUpcoming: true,
			Message:    "Quiz is not yet available. It will start on " + start.Local().Format(time.RFC1123),
		}
	}
	if now.After(end) {
		return Status{
			IsExpired: true,
			Message:   "Quiz has ended. Results are now available.",
		}
	}
	return Status{
		IsAvailable: true,
		Message:     "Quiz is currently available",
	}
}

// EvaluateNow evaluates against the wall clock.
func EvaluateNow(start, end time.Time) Status {
	return Evaluate(start, end, time.Now())
}

// TimeUntilStart is the time left before the window opens, clamped at zero.
func TimeUntilStart(start, now time.Time) time.Duration {
	return clamp(start.Sub(now))
}

// TimeUntilEnd is the time left before the window closes, clamped at zero.
func TimeUntilEnd(end, now time.Time) time.Duration {
	return clamp(end.Sub(now))
}

// LabelFor combines the quiz status with its window for display.
func LabelFor(q domain.Quiz, now time.Time) Label {
	switch q.Status {
	case domain.QuizDraft:
		return LabelDraft
	case domain.QuizClosed:
		return LabelClosed
	}
	return Evaluate(q.StartTime, q.EndTime, now).Label()
}

// CheckStartable gates a new attempt: the quiz must be published and inside its window.
// The returned error is an *domain.AvailabilityError.
func CheckStartable(q domain.Quiz, now time.Time) error {
	switch q.Status {
	case domain.QuizDraft:
		return &domain.AvailabilityError{Reason: string(LabelDraft), Message: "Quiz has not been published yet."}
	case domain.QuizClosed:
		return &domain.AvailabilityError{Reason: string(LabelClosed), Message: "Quiz is closed."}
	case domain.QuizPublished:
	default:
		return &domain.AvailabilityError{Reason: string(q.Status), Message: "Quiz is not open for participation."}
	}
	status := Evaluate(q.StartTime, q.EndTime, now)
	if !status.IsAvailable {
		return &domain.AvailabilityError{Reason: string(status.Label()), Message: status.Message}
	}
	return nil
}

func clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
