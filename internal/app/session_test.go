package app_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"quizpoint/internal/app"
	"quizpoint/internal/domain"
	"quizpoint/internal/infra/memory"
)

func TestStartIsIdempotent(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sampleQuiz(nil), midWindow)
	s := newTestSession(api, signedIn, newClock(midWindow), app.Options{})

	first, err := s.Start(ctx)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	second, err := s.Start(ctx)
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if first.SubmissionID != 101 || second.SubmissionID != first.SubmissionID {
		t.Fatalf("expected the same submission, got %d and %d", first.SubmissionID, second.SubmissionID)
	}
	if _, start, _, _ := api.counts(); start != 1 {
		t.Fatalf("expected one start call, got %d", start)
	}
	if s.State() != app.StateActive {
		t.Fatalf("expected active, got %s", s.State())
	}
}

func TestResumeRestoresSavedAnswers(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sampleQuiz(nil), midWindow)
	clk := newClock(midWindow)

	first := newTestSession(api, signedIn, clk, app.Options{})
	if _, err := first.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := first.SetAnswer(ctx, 11, domain.ChoiceAnswer{OptionID: 111}); err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	if err := first.SetAnswer(ctx, 13, domain.TextAnswer{Text: "typed pipes"}); err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	first.WaitAutosaves()
	first.Dispose()

	second := newTestSession(api, signedIn, clk, app.Options{})
	snap, err := second.Start(ctx)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if snap.SubmissionID != 101 {
		t.Fatalf("expected resumed submission 101, got %d", snap.SubmissionID)
	}
	if snap.AnsweredCount != 2 || !snap.Answered[11] || snap.Answered[12] || !snap.Answered[13] {
		t.Fatalf("unexpected answered set: %+v", snap.Answered)
	}
	if snap.HasDeadline {
		t.Fatalf("quiz without limit should have no deadline")
	}
	got, ok := second.Answer(13)
	if !ok || !domain.SameAnswer(got, domain.TextAnswer{Text: "typed pipes"}) {
		t.Fatalf("expected restored text answer, got %#v", got)
	}
}

func TestStartOverlaysJournalAndResends(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sampleQuiz(nil), midWindow)
	journal := memory.NewJournal()
	if err := journal.Record(ctx, 101, domain.NewAnswerRecord(12, domain.ChoiceAnswer{OptionID: 122})); err != nil {
		t.Fatalf("seed journal: %v", err)
	}
	// unknown questions in the journal are ignored
	if err := journal.Record(ctx, 101, domain.NewAnswerRecord(99, domain.TextAnswer{Text: "stale"})); err != nil {
		t.Fatalf("seed journal: %v", err)
	}

	s := newTestSession(api, signedIn, newClock(midWindow), app.Options{Journal: journal})
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	s.WaitAutosaves()

	got, ok := s.Answer(12)
	if !ok || !domain.SameAnswer(got, domain.ChoiceAnswer{OptionID: 122}) {
		t.Fatalf("expected journal answer, got %#v", got)
	}
	if _, ok := s.Answer(99); ok {
		t.Fatalf("unknown question should not be restored")
	}
	if _, _, save, _ := api.counts(); save != 1 {
		t.Fatalf("expected one resend, got %d", save)
	}
}

func TestAutosaveFailureKeepsAnswer(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sampleQuiz(nil), midWindow)
	api.saveErr = errors.New("connection reset")
	s := newTestSession(api, signedIn, newClock(midWindow), app.Options{})
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := s.SetAnswer(ctx, 11, domain.ChoiceAnswer{OptionID: 112}); err != nil {
		t.Fatalf("answer should be accepted locally: %v", err)
	}
	s.WaitAutosaves()

	if _, ok := s.Answer(11); !ok {
		t.Fatalf("answer was rolled back")
	}
	snap := s.Snapshot()
	if snap.State != app.StateActive {
		t.Fatalf("autosave failure must not leave active, got %s", snap.State)
	}
	if !strings.Contains(snap.AutosaveError, "autosave failed") {
		t.Fatalf("expected autosave error in snapshot, got %q", snap.AutosaveError)
	}

	api.set(func(f *fakeAPI) { f.saveErr = nil })
	if err := s.SetAnswer(ctx, 12, domain.ChoiceAnswer{OptionID: 121}); err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	s.WaitAutosaves()
	if got := s.Snapshot().AutosaveError; got != "" {
		t.Fatalf("successful save should clear the error, got %q", got)
	}
}

func TestSetAnswerValidation(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sampleQuiz(nil), midWindow)
	s := newTestSession(api, signedIn, newClock(midWindow), app.Options{})

	if err := s.SetAnswer(ctx, 11, domain.ChoiceAnswer{OptionID: 111}); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("expected not active before start, got %v", err)
	}
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	cases := []struct {
		name     string
		question int64
		answer   domain.Answer
		want     error
	}{
		{"unknown question", 42, domain.ChoiceAnswer{OptionID: 111}, domain.ErrQuestionNotFound},
		{"foreign option", 11, domain.ChoiceAnswer{OptionID: 121}, domain.ErrOptionNotFound},
		{"text on mcq", 11, domain.TextAnswer{Text: "zero"}, domain.ErrInvalidAnswer},
		{"option on descriptive", 13, domain.ChoiceAnswer{OptionID: 111}, domain.ErrInvalidAnswer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := s.SetAnswer(ctx, tc.question, tc.answer); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if got := s.Snapshot().AnsweredCount; got != 0 {
		t.Fatalf("rejected answers must not be stored, got %d", got)
	}
}

func TestManualSubmitRacingTimerSubmitsOnce(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sampleQuiz(intPtr(5)), midWindow)
	api.submitGate = make(chan struct{})
	api.submitEntered = make(chan struct{}, 1)
	clk := newClock(midWindow)
	s := newTestSession(api, signedIn, clk, app.Options{})
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	clk.Set(midWindow.Add(5*time.Minute - 10*time.Millisecond))
	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(ctx, app.Confirmed)
		done <- err
	}()
	<-api.submitEntered

	clk.Set(midWindow.Add(5*time.Minute + time.Second))
	if _, fired := s.Tick(ctx); fired {
		t.Fatalf("timer must not fire while a submit is in flight")
	}
	if err := s.SetAnswer(ctx, 11, domain.ChoiceAnswer{OptionID: 111}); !errors.Is(err, domain.ErrSubmitInProgress) {
		t.Fatalf("expected submit in progress, got %v", err)
	}

	close(api.submitGate)
	if err := <-done; err != nil {
		t.Fatalf("manual submit failed: %v", err)
	}
	if _, fired := s.Tick(ctx); fired {
		t.Fatalf("timer fired after termination")
	}
	if _, _, _, submits := api.counts(); submits != 1 {
		t.Fatalf("expected exactly one submit call, got %d", submits)
	}
	if s.State() != app.StateTerminated {
		t.Fatalf("expected terminated, got %s", s.State())
	}
}

func TestTimerRacingManualSubmitSubmitsOnce(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sampleQuiz(intPtr(5)), midWindow)
	api.submitGate = make(chan struct{})
	api.submitEntered = make(chan struct{}, 1)
	clk := newClock(midWindow.Add(5 * time.Minute))
	s := newTestSession(api, signedIn, clk, app.Options{})
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	fired := make(chan bool, 1)
	go func() {
		_, ok := s.Tick(ctx)
		fired <- ok
	}()
	<-api.submitEntered

	if _, err := s.Submit(ctx, app.Confirmed); !errors.Is(err, domain.ErrSubmitInProgress) {
		t.Fatalf("expected submit in progress, got %v", err)
	}
	close(api.submitGate)
	if !<-fired {
		t.Fatalf("expected the timer to perform the submit")
	}
	if _, _, _, submits := api.counts(); submits != 1 {
		t.Fatalf("expected exactly one submit call, got %d", submits)
	}
	if _, err := s.Submit(ctx, app.Confirmed); !errors.Is(err, domain.ErrSessionTerminated) {
		t.Fatalf("expected terminated, got %v", err)
	}
}

func TestManualSubmitStopsCountdown(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sampleQuiz(intPtr(1)), midWindow)
	clk := newClock(midWindow)
	s := newTestSession(api, signedIn, clk, app.Options{Tick: time.Millisecond})
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	answers := map[int64]domain.Answer{
		11: domain.ChoiceAnswer{OptionID: 111},
		12: domain.ChoiceAnswer{OptionID: 121},
		13: domain.TextAnswer{Text: "typed conduits"},
	}
	for qid, a := range answers {
		clk.Advance(10 * time.Second)
		if err := s.SetAnswer(ctx, qid, a); err != nil {
			t.Fatalf("answer %d failed: %v", qid, err)
		}
	}
	s.WaitAutosaves()

	result, err := s.Submit(ctx, app.Confirmed)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.Submission.Status != domain.SubmissionSubmitted || result.Submission.SubmittedAt == nil {
		t.Fatalf("expected final submission, got %+v", result.Submission)
	}
	if result.TotalScore != 3 {
		t.Fatalf("expected score 3, got %v", result.TotalScore)
	}

	clk.Advance(2 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	if _, _, _, submits := api.counts(); submits != 1 {
		t.Fatalf("countdown fired after manual submit: %d submit calls", submits)
	}
	snap := s.Snapshot()
	if snap.State != app.StateTerminated || snap.RemainingSeconds != 30 {
		t.Fatalf("expected terminated with 30s frozen, got %s %d", snap.State, snap.RemainingSeconds)
	}
	s.Dispose()
}

func TestCountdownAutoSubmits(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sampleQuiz(intPtr(1)), midWindow)
	clk := newClock(midWindow.Add(10 * time.Second))
	archive := memory.NewArchive()
	s := newTestSession(api, signedIn, clk, app.Options{Tick: time.Millisecond, Archive: archive})
	defer s.Dispose()
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	clk.Advance(time.Minute)
	waitFor(t, "auto-submit", func() bool { return s.State() == app.StateTerminated })
	time.Sleep(10 * time.Millisecond)

	if _, _, _, submits := api.counts(); submits != 1 {
		t.Fatalf("expected exactly one submit call, got %d", submits)
	}
	waitFor(t, "archive record", func() bool {
		history, _ := archive.History(ctx, 7, 10)
		return len(history) == 1
	})
}

func TestResumePastDeadlineSubmitsOnFirstTick(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sampleQuiz(intPtr(5)), midWindow)
	clk := newClock(midWindow.Add(10 * time.Minute))
	s := newTestSession(api, signedIn, clk, app.Options{})

	snap, err := s.Start(ctx)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if snap.RemainingSeconds != 0 || !snap.LowTime {
		t.Fatalf("expected an expired countdown, got %+v", snap)
	}
	if _, fired := s.Tick(ctx); !fired {
		t.Fatalf("expected the first tick to submit")
	}
	if s.State() != app.StateTerminated {
		t.Fatalf("expected terminated, got %s", s.State())
	}
}

func TestRemainingIsDerivedFromDeadline(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sampleQuiz(intPtr(10)), midWindow)
	clk := newClock(midWindow.Add(4*time.Minute + 30*time.Second + 500*time.Millisecond))
	s := newTestSession(api, signedIn, clk, app.Options{})

	snap, err := s.Start(ctx)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !snap.HasDeadline || snap.RemainingSeconds != 330 || snap.LowTime {
		t.Fatalf("expected 330s remaining without low-time, got %+v", snap)
	}

	clk.Advance(30*time.Second + 500*time.Millisecond)
	remaining, fired := s.Tick(ctx)
	if fired || remaining != 4*time.Minute+59*time.Second {
		t.Fatalf("unexpected tick result %v %v", remaining, fired)
	}
	if snap := s.Snapshot(); snap.RemainingSeconds != 299 || !snap.LowTime {
		t.Fatalf("expected low-time at 299s, got %+v", snap)
	}
}

func TestAnswerAfterTerminationLeavesSnapshotUnchanged(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sampleQuiz(intPtr(5)), midWindow)
	clk := newClock(midWindow.Add(time.Minute))
	s := newTestSession(api, signedIn, clk, app.Options{})
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := s.SetAnswer(ctx, 11, domain.ChoiceAnswer{OptionID: 111}); err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	s.WaitAutosaves()
	if _, err := s.Submit(ctx, app.Confirmed); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	before := s.Snapshot()
	clk.Advance(time.Minute)
	if err := s.SetAnswer(ctx, 12, domain.ChoiceAnswer{OptionID: 121}); !errors.Is(err, domain.ErrSessionTerminated) {
		t.Fatalf("expected terminated, got %v", err)
	}
	after := s.Snapshot()
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("snapshot changed after rejected answer:\n%+v\n%+v", before, after)
	}
}

func TestSubmitFailureRevertsToActive(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sampleQuiz(nil), midWindow)
	api.submitErr = errors.New("gateway timeout")
	s := newTestSession(api, signedIn, newClock(midWindow), app.Options{})
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := s.SetAnswer(ctx, 11, domain.ChoiceAnswer{OptionID: 111}); err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	s.WaitAutosaves()

	if _, err := s.Submit(ctx, app.Confirmed); !errors.Is(err, domain.ErrSubmissionFailed) {
		t.Fatalf("expected submission failed, got %v", err)
	}
	snap := s.Snapshot()
	if snap.State != app.StateActive || snap.AnsweredCount != 1 || snap.LastError == "" {
		t.Fatalf("expected active with answers kept and an error, got %+v", snap)
	}

	api.set(func(f *fakeAPI) { f.submitErr = nil })
	if _, err := s.Submit(ctx, app.Confirmed); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	api.mu.Lock()
	keys := append([]string(nil), api.submitKeys...)
	api.mu.Unlock()
	if len(keys) != 2 || keys[0] == "" || keys[0] != keys[1] {
		t.Fatalf("expected a stable idempotency key across retries, got %v", keys)
	}
	if s.Snapshot().LastError != "" {
		t.Fatalf("successful retry should clear the error")
	}
}

func TestSubmitRequiresConfirmation(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sampleQuiz(nil), midWindow)
	s := newTestSession(api, signedIn, newClock(midWindow), app.Options{})
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	var asked string
	confirm := func(_ context.Context, warning string) bool {
		asked = warning
		return false
	}
	if _, err := s.Submit(ctx, confirm); !errors.Is(err, domain.ErrSubmitNotConfirmed) {
		t.Fatalf("expected not confirmed, got %v", err)
	}
	if asked != app.SubmitWarning {
		t.Fatalf("expected the irreversibility warning, got %q", asked)
	}
	if _, err := s.Submit(ctx, nil); !errors.Is(err, domain.ErrSubmitNotConfirmed) {
		t.Fatalf("nil confirmation must not submit, got %v", err)
	}
	if _, _, _, submits := api.counts(); submits != 0 {
		t.Fatalf("expected no submit calls, got %d", submits)
	}
	if s.State() != app.StateActive {
		t.Fatalf("expected active, got %s", s.State())
	}
}

func TestSubmitFinishesJournalAndArchive(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sampleQuiz(nil), midWindow)
	journal := memory.NewJournal()
	archive := memory.NewArchive()
	clk := newClock(midWindow)
	s := newTestSession(api, signedIn, clk, app.Options{Journal: journal, Archive: archive})
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := s.SetAnswer(ctx, 13, domain.TextAnswer{Text: "pipes"}); err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	s.WaitAutosaves()
	if recs, _ := journal.Load(ctx, 101); len(recs) != 1 {
		t.Fatalf("expected one journal entry, got %d", len(recs))
	}

	if _, err := s.Submit(ctx, app.Confirmed); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if recs, _ := journal.Load(ctx, 101); len(recs) != 0 {
		t.Fatalf("journal should be dropped after submit, got %d", len(recs))
	}
	history, err := archive.History(ctx, 7, 10)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 1 || history[0].SubmissionID != 101 || history[0].Status != domain.SubmissionSubmitted {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestStartBlocked(t *testing.T) {
	tests := []struct {
		name       string
		auth       fakeAuth
		now        time.Time
		mutate     func(f *fakeAPI)
		wantReason app.BlockReason
		wantErr    error
		wantMsg    string
		wantStarts int
	}{
		{
			name:       "not signed in",
			auth:       fakeAuth{err: domain.ErrNotAuthenticated},
			now:        midWindow,
			wantReason: app.BlockNotAuthenticated,
			wantErr:    domain.ErrNotAuthenticated,
			wantMsg:    "Please sign in to take this quiz.",
		},
		{
			name:       "draft",
			auth:       signedIn,
			now:        midWindow,
			mutate:     func(f *fakeAPI) { f.quiz.Status = domain.QuizDraft },
			wantReason: app.BlockQuizNotAvailable,
			wantErr:    domain.ErrQuizNotAvailable,
			wantMsg:    "Quiz has not been published yet.",
		},
		{
			name:       "closed",
			auth:       signedIn,
			now:        midWindow,
			mutate:     func(f *fakeAPI) { f.quiz.Status = domain.QuizClosed },
			wantReason: app.BlockQuizNotAvailable,
			wantErr:    domain.ErrQuizNotAvailable,
			wantMsg:    "Quiz is closed.",
		},
		{
			name:       "upcoming",
			auth:       signedIn,
			now:        windowStart.Add(-time.Second),
			wantReason: app.BlockQuizNotAvailable,
			wantErr:    domain.ErrQuizNotAvailable,
			wantMsg:    "Quiz is not yet available. It will start on ",
		},
		{
			name:       "expired",
			auth:       signedIn,
			now:        windowEnd.Add(time.Second),
			wantReason: app.BlockQuizNotAvailable,
			wantErr:    domain.ErrQuizNotAvailable,
			wantMsg:    "Quiz has ended. Results are now available.",
		},
		{
			name:       "backend rejects repeat attempt",
			auth:       signedIn,
			now:        midWindow,
			mutate:     func(f *fakeAPI) { f.startErr = domain.ErrAlreadyParticipated },
			wantReason: app.BlockAlreadyParticipated,
			wantErr:    domain.ErrAlreadyParticipated,
			wantMsg:    "You have already participated in this quiz.",
			wantStarts: 1,
		},
		{
			name: "existing submission is final",
			auth: signedIn,
			now:  midWindow,
			mutate: func(f *fakeAPI) {
				f.sub = domain.Submission{ID: 55, QuizID: 1, Status: domain.SubmissionSubmitted}
			},
			wantReason: app.BlockAlreadyParticipated,
			wantErr:    domain.ErrAlreadyParticipated,
			wantMsg:    "You have already participated in this quiz.",
			wantStarts: 1,
		},
		{
			name:       "backend forbids",
			auth:       signedIn,
			now:        midWindow,
			mutate:     func(f *fakeAPI) { f.startErr = domain.ErrQuizNotAvailable },
			wantReason: app.BlockQuizNotAvailable,
			wantErr:    domain.ErrQuizNotAvailable,
			wantMsg:    "quiz not available",
			wantStarts: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			api := newFakeAPI(sampleQuiz(nil), midWindow)
			if tc.mutate != nil {
				tc.mutate(api)
			}
			s := newTestSession(api, tc.auth, newClock(tc.now), app.Options{})

			snap, err := s.Start(ctx)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if snap.State != app.StateBlocked || snap.BlockReason != tc.wantReason {
				t.Fatalf("expected blocked/%s, got %s/%s", tc.wantReason, snap.State, snap.BlockReason)
			}
			if !strings.HasPrefix(snap.BlockMessage, tc.wantMsg) {
				t.Fatalf("expected message %q, got %q", tc.wantMsg, snap.BlockMessage)
			}
			if _, starts, _, _ := api.counts(); starts != tc.wantStarts {
				t.Fatalf("expected %d start calls, got %d", tc.wantStarts, starts)
			}

			// blocked is final for this controller
			if _, again := s.Start(ctx); !errors.Is(again, tc.wantErr) {
				t.Fatalf("expected repeated start to report %v, got %v", tc.wantErr, again)
			}
			if _, starts, _, _ := api.counts(); starts != tc.wantStarts {
				t.Fatalf("repeated start hit the backend")
			}
		})
	}
}

func TestStartTransientFailureCanRetry(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sampleQuiz(nil), midWindow)
	api.getErr = errors.New("connection refused")
	s := newTestSession(api, signedIn, newClock(midWindow), app.Options{})

	snap, err := s.Start(ctx)
	if err == nil || snap.State != app.StateUninitialized || snap.LastError == "" {
		t.Fatalf("expected uninitialized with an error, got %+v (%v)", snap, err)
	}

	api.set(func(f *fakeAPI) { f.getErr = nil })
	snap, err = s.Start(ctx)
	if err != nil || snap.State != app.StateActive {
		t.Fatalf("retry failed: %+v (%v)", snap, err)
	}
	if snap.LastError != "" {
		t.Fatalf("retry should clear the error, got %q", snap.LastError)
	}
}

func TestOneTimeNotice(t *testing.T) {
	api := newFakeAPI(sampleQuiz(nil), midWindow)
	api.oneTime = true
	s := newTestSession(api, signedIn, newClock(midWindow), app.Options{})
	snap, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if snap.Notice != "This quiz can only be taken once." {
		t.Fatalf("unexpected notice %q", snap.Notice)
	}
}

func TestDisposeIgnoresInFlightAutosave(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sampleQuiz(intPtr(5)), midWindow)
	api.saveErr = errors.New("late failure")
	api.saveGate = make(chan struct{})
	s := newTestSession(api, signedIn, newClock(midWindow), app.Options{})
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	updates, cancel := s.Subscribe()
	defer cancel()

	if err := s.SetAnswer(ctx, 11, domain.ChoiceAnswer{OptionID: 111}); err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	s.Dispose()
	close(api.saveGate)
	s.WaitAutosaves()

	if got := s.Snapshot().AutosaveError; got != "" {
		t.Fatalf("disposed session surfaced a late autosave result: %q", got)
	}
	for range updates {
	}
	if err := s.SetAnswer(ctx, 12, domain.ChoiceAnswer{OptionID: 121}); !errors.Is(err, domain.ErrSessionDisposed) {
		t.Fatalf("expected disposed, got %v", err)
	}
	if _, fired := s.Tick(ctx); fired {
		t.Fatalf("disposed session must not submit")
	}
	if _, err := s.Start(ctx); !errors.Is(err, domain.ErrSessionDisposed) {
		t.Fatalf("expected disposed, got %v", err)
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sampleQuiz(nil), midWindow)
	s := newTestSession(api, signedIn, newClock(midWindow), app.Options{})
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	updates, cancel := s.Subscribe()
	defer cancel()
	initial := <-updates
	if initial.State != app.StateActive || initial.AnsweredCount != 0 {
		t.Fatalf("unexpected initial snapshot %+v", initial)
	}

	if err := s.SetAnswer(ctx, 12, domain.ChoiceAnswer{OptionID: 121}); err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	update := <-updates
	if update.AnsweredCount != 1 || !update.Answered[12] {
		t.Fatalf("expected answered question 12, got %+v", update)
	}
	s.WaitAutosaves()
}

func TestNavigation(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sampleQuiz(nil), midWindow)
	s := newTestSession(api, signedIn, newClock(midWindow), app.Options{})
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if snap := s.Prev(); snap.CurrentIndex != 0 {
		t.Fatalf("prev at the first question should stay, got %d", snap.CurrentIndex)
	}
	s.Next()
	s.Next()
	if snap := s.Next(); snap.CurrentIndex != 2 {
		t.Fatalf("next at the last question should stay, got %d", snap.CurrentIndex)
	}
	q, ok := s.CurrentQuestion()
	if !ok || q.ID != 13 {
		t.Fatalf("expected question 13, got %+v", q)
	}
	if _, err := s.GoTo(3); err == nil {
		t.Fatalf("expected out of range error")
	}
	snap, err := s.GoTo(1)
	if err != nil || snap.CurrentIndex != 1 {
		t.Fatalf("goto failed: %+v (%v)", snap, err)
	}
}

func TestSubmitLetsPendingAutosaveLandFirst(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sampleQuiz(nil), midWindow)
	api.saveGate = make(chan struct{})
	s := newTestSession(api, signedIn, newClock(midWindow), app.Options{})
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := s.SetAnswer(ctx, 11, domain.ChoiceAnswer{OptionID: 111}); err != nil {
		t.Fatalf("answer failed: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(api.saveGate)
	}()
	result, err := s.Submit(ctx, app.Confirmed)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.TotalScore != 1 {
		t.Fatalf("expected the pending answer to be scored, got %v", result.TotalScore)
	}
}

func TestSubmitDoesNotBlockOnStuckAutosave(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI(sampleQuiz(nil), midWindow)
	api.saveGate = make(chan struct{})
	defer close(api.saveGate)
	s := newTestSession(api, signedIn, newClock(midWindow), app.Options{})
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := s.SetAnswer(ctx, 11, domain.ChoiceAnswer{OptionID: 111}); err != nil {
		t.Fatalf("answer failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(ctx, app.Confirmed)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("submit blocked on a stuck autosave")
	}
	if s.State() != app.StateTerminated {
		t.Fatalf("expected terminated, got %s", s.State())
	}
}
