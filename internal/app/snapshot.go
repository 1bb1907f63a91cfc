package app

import "quizpoint/internal/domain"

// State is the lifecycle position of one quiz attempt.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateActive        State = "active"
	StateSubmitting    State = "submitting"
	StateTerminated    State = "terminated"
	StateBlocked       State = "blocked"
)

// BlockReason explains why an attempt never became active.
type BlockReason string

const (
	BlockNotAuthenticated    BlockReason = "not_authenticated"
	BlockQuizNotAvailable    BlockReason = "quiz_not_available"
	BlockAlreadyParticipated BlockReason = "already_participated"
)

// Snapshot is the read-only view a UI renders from.
type Snapshot struct {
	State            State                `json:"state"`
	QuizID           int64                `json:"quizId"`
	SubmissionID     int64                `json:"submissionId,omitempty"`
	Title            string               `json:"title,omitempty"`
	CurrentIndex     int                  `json:"currentIndex"`
	QuestionCount    int                  `json:"questionCount"`
	Answered         map[int64]bool       `json:"answered"`
	AnsweredCount    int                  `json:"answeredCount"`
	HasDeadline      bool                 `json:"hasDeadline"`
	RemainingSeconds int                  `json:"remainingSeconds"`
	LowTime          bool                 `json:"lowTime"`
	Notice           string               `json:"notice,omitempty"`
	BlockReason      BlockReason          `json:"blockReason,omitempty"`
	BlockMessage     string               `json:"blockMessage,omitempty"`
	LastError        string               `json:"lastError,omitempty"`
	AutosaveError    string               `json:"autosaveError,omitempty"`
	Result           *domain.SubmitResult `json:"result,omitempty"`
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:         s.state,
		QuizID:        s.quizID,
		SubmissionID:  s.submission.ID,
		Title:         s.quiz.Title,
		CurrentIndex:  s.index,
		QuestionCount: len(s.quiz.Questions),
		Answered:      make(map[int64]bool, len(s.quiz.Questions)),
		HasDeadline:   s.hasDeadline,
		Notice:        s.notice,
		BlockReason:   s.blockReason,
		BlockMessage:  s.blockMessage,
		Result:        s.result,
	}
	for _, q := range s.quiz.Questions {
		_, ok := s.answers[q.ID]
		snap.Answered[q.ID] = ok
		if ok {
			snap.AnsweredCount++
		}
	}
	if s.hasDeadline {
		if s.state == StateActive || s.state == StateSubmitting {
			snap.RemainingSeconds = RemainingSeconds(s.deadline, s.now())
		} else {
			snap.RemainingSeconds = s.frozenRemaining
		}
		snap.LowTime = snap.RemainingSeconds < int(LowTimeThreshold.Seconds())
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	if s.autosaveErr != nil {
		snap.AutosaveError = s.autosaveErr.Error()
	}
	return snap
}

// Subscribe returns a channel that receives a snapshot on every state change and countdown tick.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	initial := s.snapshotLocked()
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() Snapshot {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// slow reader: replace the stale snapshot with the latest one
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	return snap
}

func (s *Session) closeSubscribersLocked() {
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}
