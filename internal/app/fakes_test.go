package app_test

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"quizpoint/internal/app"
	"quizpoint/internal/domain"
)

var (
	windowStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	midWindow   = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *clock { return &clock{t: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeAuth struct {
	principal domain.Principal
	err       error
}

func (a fakeAuth) Principal() (domain.Principal, error) {
	return a.principal, a.err
}

var signedIn = fakeAuth{principal: domain.Principal{UserID: 7, Subject: "7"}}

// fakeAPI behaves like the backend for one user: StartQuiz creates the submission
// once and resumes it afterwards, SaveAnswer upserts into it.
type fakeAPI struct {
	mu sync.Mutex

	quiz        domain.Quiz
	quizzes     []domain.Quiz
	leaderboard domain.Leaderboard
	sub         domain.Submission
	startedAt   time.Time
	oneTime     bool

	getErr    error
	startErr  error
	saveErr   error
	submitErr error

	getCalls    int
	startCalls  int
	saveCalls   int
	submitCalls int
	submitKeys  []string

	// submitGate, when set, holds Submit until closed; submitEntered is signalled first.
	submitGate    chan struct{}
	submitEntered chan struct{}
	saveGate      chan struct{}
}

func newFakeAPI(quiz domain.Quiz, startedAt time.Time) *fakeAPI {
	return &fakeAPI{quiz: quiz, startedAt: startedAt}
}

func (f *fakeAPI) GetQuiz(_ context.Context, quizID int64) (domain.QuizView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return domain.QuizView{}, f.getErr
	}
	if quizID != f.quiz.ID {
		return domain.QuizView{}, domain.ErrQuizNotFound
	}
	view := domain.QuizView{Quiz: f.quiz, HasParticipated: f.sub.ID != 0}
	if f.sub.ID != 0 {
		id := f.sub.ID
		view.SubmissionID = &id
	}
	return view, nil
}

func (f *fakeAPI) LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	view, err := f.GetQuiz(ctx, quizID)
	return view.Quiz, err
}

func (f *fakeAPI) StartQuiz(_ context.Context, quizID int64) (domain.StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if f.startErr != nil {
		return domain.StartResult{}, f.startErr
	}
	if f.sub.ID == 0 {
		f.sub = domain.Submission{
			ID:        101,
			QuizID:    quizID,
			UserID:    7,
			AttemptNo: 1,
			Status:    domain.SubmissionInProgress,
			StartedAt: f.startedAt,
		}
	}
	result := domain.StartResult{Message: "Quiz started", Submission: f.copySubLocked(), OneTime: f.oneTime}
	if f.oneTime {
		result.WarningMessage = "This quiz can only be taken once."
	}
	return result, nil
}

func (f *fakeAPI) SaveAnswer(_ context.Context, submissionID, questionID int64, answer domain.Answer) error {
	f.mu.Lock()
	gate := f.saveGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.saveErr != nil {
		return f.saveErr
	}
	if submissionID != f.sub.ID {
		return domain.ErrSubmissionNotFound
	}
	opt, text := answer.Payload()
	for i := range f.sub.Answers {
		if f.sub.Answers[i].QuestionID == questionID {
			f.sub.Answers[i].SelectedOptionID = opt
			f.sub.Answers[i].AnswerText = text
			return nil
		}
	}
	f.sub.Answers = append(f.sub.Answers, domain.SubmittedAnswer{
		ID:               int64(len(f.sub.Answers) + 1),
		SubmissionID:     submissionID,
		QuestionID:       questionID,
		SelectedOptionID: opt,
		AnswerText:       text,
	})
	return nil
}

func (f *fakeAPI) Submit(_ context.Context, submissionID int64, key string) (domain.SubmitResult, error) {
	f.mu.Lock()
	f.submitCalls++
	f.submitKeys = append(f.submitKeys, key)
	gate, entered := f.submitGate, f.submitEntered
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return domain.SubmitResult{}, f.submitErr
	}
	if submissionID != f.sub.ID {
		return domain.SubmitResult{}, domain.ErrSubmissionNotFound
	}
	at := f.startedAt.Add(time.Minute)
	f.sub.Status = domain.SubmissionSubmitted
	f.sub.SubmittedAt = &at
	f.sub.TotalScore = float64(len(f.sub.Answers))
	return domain.SubmitResult{
		Message:    "Quiz submitted successfully",
		Submission: f.copySubLocked(),
		TotalScore: f.sub.TotalScore,
		ShowScore:  true,
	}, nil
}

func (f *fakeAPI) ListQuizzes(context.Context) ([]domain.Quiz, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Quiz(nil), f.quizzes...), nil
}

func (f *fakeAPI) GetSubmission(_ context.Context, submissionID int64) (domain.SubmissionView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if submissionID != f.sub.ID {
		return domain.SubmissionView{}, domain.ErrSubmissionNotFound
	}
	return domain.SubmissionView{Submission: f.copySubLocked(), ShowAnswers: true}, nil
}

func (f *fakeAPI) GetLeaderboard(context.Context, int64) (domain.Leaderboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leaderboard, nil
}

func (f *fakeAPI) copySubLocked() domain.Submission {
	sub := f.sub
	sub.Answers = append([]domain.SubmittedAnswer(nil), f.sub.Answers...)
	return sub
}

func (f *fakeAPI) counts() (get, start, save, submit int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls, f.startCalls, f.saveCalls, f.submitCalls
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

func intPtr(v int) *int { return &v }

// sampleQuiz has two MCQ questions and one descriptive question.
func sampleQuiz(limitMinutes *int) domain.Quiz {
	return domain.Quiz{
		ID:               1,
		Title:            "Go basics",
		TimeLimitMinutes: limitMinutes,
		StartTime:        windowStart,
		EndTime:          windowEnd,
		Status:           domain.QuizPublished,
		TotalPoints:      3,
		Questions: []domain.Question{
			{ID: 11, QuizID: 1, Text: "Zero value of int?", Type: domain.QuestionMCQ, Points: 1, Options: []domain.Option{
				{ID: 111, QuestionID: 11, Text: "0"},
				{ID: 112, QuestionID: 11, Text: "nil"},
			}},
			{ID: 12, QuizID: 1, Text: "Keyword for goroutines?", Type: domain.QuestionMCQ, Points: 1, Options: []domain.Option{
				{ID: 121, QuestionID: 12, Text: "go"},
				{ID: 122, QuestionID: 12, Text: "async"},
			}},
			{ID: 13, QuizID: 1, Text: "Explain channels.", Type: domain.QuestionDescriptive, Points: 1},
		},
	}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestSession(api *fakeAPI, auth app.CurrentSession, clk *clock, opts app.Options) *app.Session {
	if opts.Tick == 0 {
		opts.Tick = -1
	}
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	return app.NewSessionWithClock(1, api, auth, opts, clk.Now)
}

func declined(context.Context, string) bool { return false }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
