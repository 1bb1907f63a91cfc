package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"quizpoint/internal/availability"
	"quizpoint/internal/domain"
)

// SubmitWarning is shown before a manual submit.
const SubmitWarning = "Are you sure you want to submit? You cannot change your answers after submission."

const (
	defaultTick            = time.Second
	defaultAutosaveTimeout = 10 * time.Second
	defaultSubmitTimeout   = 30 * time.Second

	// autosaveFlushWait bounds how long a submit waits for autosaves already in flight.
	autosaveFlushWait = 2 * time.Second
)

// Confirmation asks the user to accept an irreversible action.
type Confirmation func(ctx context.Context, warning string) bool

// Confirmed accepts without asking; for callers that already collected consent.
func Confirmed(context.Context, string) bool { return true }

// Options tune a Session. Zero values pick the defaults.
type Options struct {
	// Tick is the countdown resolution. A negative value disables the background
	// loop and leaves calling Tick to the owner's event loop.
	Tick            time.Duration
	AutosaveTimeout time.Duration
	SubmitTimeout   time.Duration
	Logger          *log.Logger
	Journal         AnswerJournal
	Archive         ResultArchive
}

// Session owns a single quiz attempt from start through its terminal submit.
type Session struct {
	quizID  int64
	api     QuizAPI
	auth    CurrentSession
	journal AnswerJournal
	archive ResultArchive
	logger  *log.Logger
	now     func() time.Time
	opts    Options

	mu              sync.Mutex
	state           State
	blockReason     BlockReason
	blockMessage    string
	principal       domain.Principal
	quiz            domain.Quiz
	submission      domain.Submission
	answers         map[int64]domain.Answer
	index           int
	deadline        time.Time
	hasDeadline     bool
	frozenRemaining int
	notice          string
	lastErr         error
	autosaveErr     error
	result          *domain.SubmitResult
	submitKey       string
	disposed        bool
	stopTimer       chan struct{}
	subscribers     map[chan Snapshot]struct{}

	autosaves sync.WaitGroup
}

// NewSession creates a controller for one attempt at quizID.
func NewSession(quizID int64, api QuizAPI, auth CurrentSession, opts Options) *Session {
	return NewSessionWithClock(quizID, api, auth, opts, time.Now)
}

// NewSessionWithClock allows deterministic countdowns in tests.
func NewSessionWithClock(quizID int64, api QuizAPI, auth CurrentSession, opts Options, now func() time.Time) *Session {
	if opts.Tick == 0 {
		opts.Tick = defaultTick
	}
	if opts.AutosaveTimeout <= 0 {
		opts.AutosaveTimeout = defaultAutosaveTimeout
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = defaultSubmitTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		quizID:      quizID,
		api:         api,
		auth:        auth,
		journal:     opts.Journal,
		archive:     opts.Archive,
		logger:      logger,
		now:         now,
		opts:        opts,
		state:       StateUninitialized,
		answers:     make(map[int64]domain.Answer),
		submitKey:   uuid.NewString(),
		subscribers: make(map[chan Snapshot]struct{}),
	}
}

// Start gates entry, then creates or resumes the caller's submission and starts the countdown.
// Calling Start on an attempt that is already running returns its snapshot without another
// backend call.
func (s *Session) Start(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return Snapshot{}, domain.ErrSessionDisposed
	}
	switch s.state {
	case StateActive, StateSubmitting, StateTerminated:
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	case StateLoading:
		s.mu.Unlock()
		return Snapshot{}, domain.ErrStartInProgress
	case StateBlocked:
		snap := s.snapshotLocked()
		err := s.lastErr
		s.mu.Unlock()
		return snap, err
	}
	s.state = StateLoading
	s.lastErr = nil
	s.broadcastLocked()
	s.mu.Unlock()

	principal, err := s.auth.Principal()
	if err != nil {
		return s.block(BlockNotAuthenticated, err)
	}

	view, err := s.api.GetQuiz(ctx, s.quizID)
	if err != nil {
		return s.loadFailed(err)
	}
	if err := availability.CheckStartable(view.Quiz, s.now()); err != nil {
		return s.block(BlockQuizNotAvailable, err)
	}

	started, err := s.api.StartQuiz(ctx, s.quizID)
	if err != nil {
		return s.loadFailed(err)
	}
	if started.Submission.Status.Terminal() {
		return s.block(BlockAlreadyParticipated, fmt.Errorf("%w: submission %d is %s",
			domain.ErrAlreadyParticipated, started.Submission.ID, started.Submission.Status))
	}

	answers, resend := s.hydrate(ctx, view.Quiz, started.Submission)

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return Snapshot{}, domain.ErrSessionDisposed
	}
	s.principal = principal
	s.quiz = view.Quiz
	s.submission = started.Submission
	s.answers = answers
	s.index = 0
	if started.OneTime {
		s.notice = started.WarningMessage
	}
	if limit, ok := view.Quiz.TimeLimit(); ok {
		startedAt := started.Submission.StartedAt
		if startedAt.IsZero() {
			startedAt = s.now()
		}
		s.deadline = Deadline(startedAt, limit)
		s.hasDeadline = true
	}
	s.state = StateActive
	if s.hasDeadline && s.opts.Tick > 0 {
		s.stopTimer = make(chan struct{})
		go s.runCountdown(s.stopTimer)
	}
	submissionID := s.submission.ID
	s.autosaves.Add(len(resend))
	snap := s.broadcastLocked()
	s.mu.Unlock()

	for qid, answer := range resend {
		go s.autosave(submissionID, qid, answer)
	}
	return snap, nil
}

// hydrate rebuilds the answer map from the backend copy, overlaid with any local journal
// entries. Journal entries that differ from the backend are returned for re-sending.
func (s *Session) hydrate(ctx context.Context, quiz domain.Quiz, sub domain.Submission) (map[int64]domain.Answer, map[int64]domain.Answer) {
	answers := make(map[int64]domain.Answer, len(sub.Answers))
	for _, sa := range sub.Answers {
		if a, ok := domain.AnswerFromSubmitted(sa); ok {
			answers[sa.QuestionID] = a
		}
	}
	resend := make(map[int64]domain.Answer)
	if s.journal == nil {
		return answers, resend
	}

	records, err := s.journal.Load(ctx, sub.ID)
	if err != nil {
		s.logger.Printf("journal load failed for submission %d: %v", sub.ID, err)
		return answers, resend
	}
	for _, rec := range records {
		a, ok := rec.Answer()
		if !ok {
			continue
		}
		q, ok := quiz.Question(rec.QuestionID)
		if !ok || domain.ValidateAnswer(q, a) != nil {
			continue
		}
		if existing, ok := answers[rec.QuestionID]; ok && domain.SameAnswer(existing, a) {
			continue
		}
		answers[rec.QuestionID] = a
		resend[rec.QuestionID] = a
	}
	return answers, resend
}

func (s *Session) block(reason BlockReason, err error) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateBlocked
	s.blockReason = reason
	s.blockMessage = blockMessage(err)
	s.lastErr = err
	return s.broadcastLocked(), err
}

// loadFailed maps backend failures of the loading phase: the terminal ones block the
// attempt, anything else returns to Uninitialized so Start can be retried.
func (s *Session) loadFailed(err error) (Snapshot, error) {
	switch {
	case errors.Is(err, domain.ErrNotAuthenticated):
		return s.block(BlockNotAuthenticated, err)
	case errors.Is(err, domain.ErrAlreadyParticipated):
		return s.block(BlockAlreadyParticipated, err)
	case errors.Is(err, domain.ErrQuizNotAvailable):
		var availErr *domain.AvailabilityError
		if !errors.As(err, &availErr) {
			err = &domain.AvailabilityError{Reason: "rejected", Message: userMessage(err)}
		}
		return s.block(BlockQuizNotAvailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateUninitialized
	s.lastErr = err
	return s.broadcastLocked(), err
}

// SetAnswer records an answer optimistically and autosaves it in the background.
// Autosave failures never roll the answer back.
func (s *Session) SetAnswer(ctx context.Context, questionID int64, answer domain.Answer) error {
	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	q, ok := s.quiz.Question(questionID)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", domain.ErrQuestionNotFound, questionID)
	}
	if err := domain.ValidateAnswer(q, answer); err != nil {
		s.mu.Unlock()
		return err
	}
	s.answers[questionID] = answer
	submissionID := s.submission.ID
	s.autosaves.Add(1)
	s.broadcastLocked()
	s.mu.Unlock()

	if s.journal != nil {
		if err := s.journal.Record(ctx, submissionID, domain.NewAnswerRecord(questionID, answer)); err != nil {
			s.logger.Printf("journal record failed for submission %d question %d: %v", submissionID, questionID, err)
		}
	}
	go s.autosave(submissionID, questionID, answer)
	return nil
}

// usableLocked rejects answer edits outside the Active state.
func (s *Session) usableLocked() error {
	if s.disposed {
		return domain.ErrSessionDisposed
	}
	switch s.state {
	case StateActive:
		return nil
	case StateSubmitting:
		return domain.ErrSubmitInProgress
	case StateTerminated:
		return domain.ErrSessionTerminated
	}
	return domain.ErrSessionNotActive
}

// autosave runs in its own goroutine; the caller has already added it to s.autosaves
// while holding the lock.
func (s *Session) autosave(submissionID, questionID int64, answer domain.Answer) {
	defer s.autosaves.Done()
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.AutosaveTimeout)
	defer cancel()

	err := s.api.SaveAnswer(ctx, submissionID, questionID, answer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	if err != nil {
		s.autosaveErr = fmt.Errorf("%w: question %d: %w", domain.ErrAutosaveFailed, questionID, err)
		s.logger.Printf("autosave failed for submission %d question %d: %v", submissionID, questionID, err)
	} else {
		s.autosaveErr = nil
	}
	if s.state == StateActive {
		s.broadcastLocked()
	}
}

// WaitAutosaves blocks until every in-flight autosave has returned.
func (s *Session) WaitAutosaves() {
	s.autosaves.Wait()
}

// Submit asks for confirmation, then performs the terminal submit.
// On failure the attempt returns to Active and the submit can be retried.
func (s *Session) Submit(ctx context.Context, confirm Confirmation) (domain.SubmitResult, error) {
	s.mu.Lock()
	err := s.usableLocked()
	s.mu.Unlock()
	if err != nil {
		return domain.SubmitResult{}, err
	}
	if confirm == nil || !confirm(ctx, SubmitWarning) {
		return domain.SubmitResult{}, domain.ErrSubmitNotConfirmed
	}
	return s.submit(ctx, "manual")
}

// submit is the single-fire terminal transition shared by the manual and timer paths:
// only the caller that moves Active to Submitting issues the backend call.
// Pending autosaves get a short window to land first so the backend scores the latest answers.
func (s *Session) submit(ctx context.Context, trigger string) (domain.SubmitResult, error) {
	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return domain.SubmitResult{}, err
	}
	s.state = StateSubmitting
	s.lastErr = nil
	submissionID := s.submission.ID
	s.broadcastLocked()
	s.mu.Unlock()

	s.flushAutosaves(ctx)
	s.logger.Printf("submitting submission %d (%s)", submissionID, trigger)
	result, err := s.api.Submit(ctx, submissionID, s.submitKey)

	s.mu.Lock()
	if err != nil {
		s.state = StateActive
		s.lastErr = fmt.Errorf("%w: %w", domain.ErrSubmissionFailed, err)
		err = s.lastErr
		s.broadcastLocked()
		s.mu.Unlock()
		return domain.SubmitResult{}, err
	}

	final := result.Submission
	if final.ID == 0 {
		final = s.submission
		final.Status = domain.SubmissionSubmitted
		final.TotalScore = result.TotalScore
	}
	if final.SubmittedAt == nil {
		at := s.now()
		final.SubmittedAt = &at
	}
	result.Submission = final
	if s.hasDeadline {
		s.frozenRemaining = RemainingSeconds(s.deadline, s.now())
	}
	s.submission = final
	s.result = &result
	s.state = StateTerminated
	s.stopTimerLocked()
	s.broadcastLocked()
	userID := s.principal.UserID
	s.mu.Unlock()

	s.finish(final, userID)
	return result, nil
}

// flushAutosaves waits for in-flight autosaves, but never longer than autosaveFlushWait.
func (s *Session) flushAutosaves(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.autosaves.Wait()
		close(done)
	}()
	timer := time.NewTimer(autosaveFlushWait)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.logger.Printf("submitting without waiting for pending autosaves")
	case <-ctx.Done():
	}
}

// finish drops the local journal and archives the outcome. Both are best-effort.
func (s *Session) finish(final domain.Submission, userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.AutosaveTimeout)
	defer cancel()

	if s.journal != nil {
		if err := s.journal.Drop(ctx, final.ID); err != nil {
			s.logger.Printf("journal drop failed for submission %d: %v", final.ID, err)
		}
	}
	if s.archive != nil {
		if final.UserID != 0 {
			userID = final.UserID
		}
		rec := domain.AttemptRecord{
			SubmissionID: final.ID,
			QuizID:       s.quizID,
			UserID:       userID,
			Status:       final.Status,
			TotalScore:   final.TotalScore,
			StartedAt:    final.StartedAt,
			SubmittedAt:  final.SubmittedAt,
			RecordedAt:   s.now(),
		}
		if err := s.archive.Record(ctx, rec); err != nil {
			s.logger.Printf("archive failed for submission %d: %v", final.ID, err)
		}
	}
}

// Tick re-derives the remaining time and fires the auto-submit once it reaches zero.
// It reports whether this call performed the terminal submit.
func (s *Session) Tick(ctx context.Context) (time.Duration, bool) {
	s.mu.Lock()
	if s.disposed || s.state != StateActive || !s.hasDeadline {
		s.mu.Unlock()
		return 0, false
	}
	remaining := Remaining(s.deadline, s.now())
	s.broadcastLocked()
	s.mu.Unlock()

	if remaining > 0 {
		return remaining, false
	}

	s.logger.Printf("time limit reached for quiz %d, submitting", s.quizID)
	if _, err := s.submit(ctx, "timer"); err != nil {
		if !errors.Is(err, domain.ErrSubmitInProgress) && !errors.Is(err, domain.ErrSessionTerminated) {
			s.logger.Printf("auto-submit failed for quiz %d: %v", s.quizID, err)
		}
		return 0, false
	}
	return 0, true
}

func (s *Session) runCountdown(stop <-chan struct{}) {
	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()

	tick := func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.SubmitTimeout)
		defer cancel()
		s.Tick(ctx)
	}

	tick()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			tick()
		}
	}
}

func (s *Session) stopTimerLocked() {
	if s.stopTimer != nil {
		close(s.stopTimer)
		s.stopTimer = nil
	}
}

// Dispose stops the countdown and detaches subscribers. In-flight autosaves are
// abandoned: their results are ignored.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	if s.hasDeadline && (s.state == StateActive || s.state == StateSubmitting) {
		s.frozenRemaining = RemainingSeconds(s.deadline, s.now())
	}
	s.disposed = true
	s.stopTimerLocked()
	s.closeSubscribersLocked()
}

// Next moves to the following question.
func (s *Session) Next() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index < len(s.quiz.Questions)-1 {
		s.index++
	}
	return s.broadcastLocked()
}

// Prev moves to the previous question.
func (s *Session) Prev() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index > 0 {
		s.index--
	}
	return s.broadcastLocked()
}

// GoTo jumps to a question index.
func (s *Session) GoTo(index int) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.quiz.Questions) {
		return s.snapshotLocked(), fmt.Errorf("question index %d out of range [0,%d)", index, len(s.quiz.Questions))
	}
	s.index = index
	return s.broadcastLocked(), nil
}

// Snapshot returns the current view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the last surfaced error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Quiz returns the loaded quiz definition.
func (s *Session) Quiz() domain.Quiz {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quiz
}

// Submission returns the attempt's submission; final once Terminated.
func (s *Session) Submission() domain.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submission
}

// CurrentQuestion returns the question under the cursor.
func (s *Session) CurrentQuestion() (domain.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index < 0 || s.index >= len(s.quiz.Questions) {
		return domain.Question{}, false
	}
	return s.quiz.Questions[s.index], true
}

// Answer returns the in-memory answer for a question.
func (s *Session) Answer(questionID int64) (domain.Answer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[questionID]
	return a, ok
}

// Answers returns a copy of the answer map.
func (s *Session) Answers() map[int64]domain.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]domain.Answer, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

func blockMessage(err error) string {
	var availErr *domain.AvailabilityError
	if errors.As(err, &availErr) {
		return availErr.Message
	}
	switch {
	case errors.Is(err, domain.ErrNotAuthenticated):
		return "Please sign in to take this quiz."
	case errors.Is(err, domain.ErrAlreadyParticipated):
		var m interface{ UserMessage() string }
		if errors.As(err, &m) && m.UserMessage() != "" {
			return m.UserMessage()
		}
		return "You have already participated in this quiz."
	}
	return err.Error()
}

// userMessage prefers the backend's own wording when the error chain carries one.
func userMessage(err error) string {
	var m interface{ UserMessage() string }
	if errors.As(err, &m) && m.UserMessage() != "" {
		return m.UserMessage()
	}
	return err.Error()
}
