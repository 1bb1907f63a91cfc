package app

import (
	"context"
	"sort"
	"time"

	"quizpoint/internal/availability"
	"quizpoint/internal/domain"
)

// QuizService wires the backend, the caller's identity and local stores, and opens
// one Session per attempt. It holds no answer state itself.
type QuizService struct {
	api     BackendAPI
	auth    CurrentSession
	quizzes QuizRepository
	opts    Options
	now     func() time.Time
}

func NewQuizService(api BackendAPI, auth CurrentSession, quizzes QuizRepository, opts Options) *QuizService {
	return NewQuizServiceWithClock(api, auth, quizzes, opts, time.Now)
}

// NewQuizServiceWithClock is test-only for deterministic timestamps.
func NewQuizServiceWithClock(api BackendAPI, auth CurrentSession, quizzes QuizRepository, opts Options, now func() time.Time) *QuizService {
	return &QuizService{api: api, auth: auth, quizzes: quizzes, opts: opts, now: now}
}

// Open creates a fresh controller for a new or resumed attempt.
func (s *QuizService) Open(quizID int64) *Session {
	return NewSessionWithClock(quizID, s.api, s.auth, s.opts, s.now)
}

// QuizAvailability is a quiz with its evaluated window.
type QuizAvailability struct {
	Quiz     domain.Quiz         `json:"quiz"`
	Label    availability.Label  `json:"label"`
	Status   availability.Status `json:"status"`
	StartsIn time.Duration       `json:"startsIn"`
	EndsIn   time.Duration       `json:"endsIn"`
}

// Startable reports whether a new attempt may begin now.
func (a QuizAvailability) Startable() bool {
	return a.Label == availability.LabelActive
}

func (s *QuizService) evaluate(q domain.Quiz) QuizAvailability {
	now := s.now()
	return QuizAvailability{
		Quiz:     q,
		Label:    availability.LabelFor(q, now),
		Status:   availability.Evaluate(q.StartTime, q.EndTime, now),
		StartsIn: availability.TimeUntilStart(q.StartTime, now),
		EndsIn:   availability.TimeUntilEnd(q.EndTime, now),
	}
}

// Quiz returns a (possibly cached) quiz definition.
func (s *QuizService) Quiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return s.quizzes.GetQuiz(ctx, quizID)
}

// Availability evaluates a single quiz for display.
func (s *QuizService) Availability(ctx context.Context, quizID int64) (QuizAvailability, error) {
	q, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return QuizAvailability{}, err
	}
	return s.evaluate(q), nil
}

// Catalog lists visible quizzes, active first, then upcoming, then the rest, each by start time.
func (s *QuizService) Catalog(ctx context.Context) ([]QuizAvailability, error) {
	if _, err := s.auth.Principal(); err != nil {
		return nil, err
	}
	quizzes, err := s.api.ListQuizzes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]QuizAvailability, 0, len(quizzes))
	for _, q := range quizzes {
		out = append(out, s.evaluate(q))
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := labelRank(out[i].Label), labelRank(out[j].Label)
		if ri != rj {
			return ri < rj
		}
		return out[i].Quiz.StartTime.Before(out[j].Quiz.StartTime)
	})
	return out, nil
}

func labelRank(l availability.Label) int {
	switch l {
	case availability.LabelActive:
		return 0
	case availability.LabelUpcoming:
		return 1
	case availability.LabelExpired:
		return 2
	case availability.LabelClosed:
		return 3
	}
	return 4
}

// Leaderboard returns the ranking ordered by rank.
func (s *QuizService) Leaderboard(ctx context.Context, quizID int64) (domain.Leaderboard, error) {
	lb, err := s.api.GetLeaderboard(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	sort.SliceStable(lb.Entries, func(i, j int) bool {
		return lb.Entries[i].Rank < lb.Entries[j].Rank
	})
	return lb, nil
}

// Results reads a finished submission.
func (s *QuizService) Results(ctx context.Context, submissionID int64) (domain.SubmissionView, error) {
	return s.api.GetSubmission(ctx, submissionID)
}

// History lists the caller's archived attempts, newest first.
func (s *QuizService) History(ctx context.Context, limit int) ([]domain.AttemptRecord, error) {
	principal, err := s.auth.Principal()
	if err != nil {
		return nil, err
	}
	if s.opts.Archive == nil {
		return nil, nil
	}
	return s.opts.Archive.History(ctx, principal.UserID, limit)
}
