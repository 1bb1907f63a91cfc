package domain

import "time"

// QuizStatus is the publication state of a quiz.
type QuizStatus string

const (
	QuizDraft     QuizStatus = "draft"
	QuizPublished QuizStatus = "published"
	QuizClosed    QuizStatus = "closed"
)

// QuestionType decides which Answer variant a question accepts.
type QuestionType string

const (
	QuestionMCQ         QuestionType = "mcq"
	QuestionDescriptive QuestionType = "descriptive"
)

// SubmissionStatus tracks the lifecycle of one attempt.
type SubmissionStatus string

const (
	SubmissionInProgress SubmissionStatus = "in_progress"
	SubmissionSubmitted  SubmissionStatus = "submitted"
	SubmissionClosed     SubmissionStatus = "closed"
)

// Terminal reports whether no further answers may be recorded.
func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionSubmitted || s == SubmissionClosed
}

// Option represents a possible answer for an MCQ question.
type Option struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Text       string `json:"option_text"`
	OrderIndex int    `json:"order_index"`
	// Correct is only populated by admin or post-submit views.
	Correct bool `json:"is_correct,omitempty"`
}

// Question is a single quiz item.
type Question struct {
	ID         int64        `json:"id"`
	QuizID     int64        `json:"quiz_id"`
	Text       string       `json:"question_text"`
	Type       QuestionType `json:"question_type"`
	Points     float64      `json:"points"`
	OrderIndex int          `json:"order_index"`
	IsRequired bool         `json:"is_required"`
	Options    []Option     `json:"options,omitempty"`
}

// Option looks up an option by id.
func (q Question) Option(id int64) (Option, bool) {
	for _, opt := range q.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return Option{}, false
}

// Quiz carries the definition and the participation window.
type Quiz struct {
	ID                int64      `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	TimeLimitMinutes  *int       `json:"time_limit_minutes"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           time.Time  `json:"end_time"`
	ShowCorrectAnswer bool       `json:"show_correct_answer"`
	TotalPoints       float64    `json:"total_points"`
	Status            QuizStatus `json:"status"`
	ResultsPublished  bool       `json:"results_published"`
	Questions         []Question `json:"questions,omitempty"`
}

// TimeLimit returns the per-attempt cap, or false when the quiz is only bounded by its window.
func (q Quiz) TimeLimit() (time.Duration, bool) {
	if q.TimeLimitMinutes == nil || *q.TimeLimitMinutes <= 0 {
		return 0, false
	}
	return time.Duration(*q.TimeLimitMinutes) * time.Minute, true
}

// Question finds a question by id.
func (q Quiz) Question(id int64) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// QuizView is the quiz detail response as seen by the current user.
type QuizView struct {
	Quiz            Quiz   `json:"quiz"`
	HasParticipated bool   `json:"has_participated"`
	SubmissionID    *int64 `json:"submission_id,omitempty"`
}

// SubmittedAnswer is the backend's stored answer row.
type SubmittedAnswer struct {
	ID               int64      `json:"id"`
	SubmissionID     int64      `json:"submission_id"`
	QuestionID       int64      `json:"question_id"`
	SelectedOptionID *int64     `json:"selected_option_id"`
	AnswerText       *string    `json:"answer_text"`
	IsCorrect        *bool      `json:"is_correct"`
	ScoreAwarded     float64    `json:"score_awarded"`
	Feedback         *string    `json:"feedback"`
	AnsweredAt       *time.Time `json:"answered_at"`
}

// Submission is one user's attempt at a quiz.
type Submission struct {
	ID          int64             `json:"id"`
	QuizID      int64             `json:"quiz_id"`
	UserID      int64             `json:"user_id"`
	AttemptNo   int               `json:"attempt_no"`
	Status      SubmissionStatus  `json:"status"`
	StartedAt   time.Time         `json:"started_at"`
	SubmittedAt *time.Time        `json:"submitted_at"`
	TotalScore  float64           `json:"total_score"`
	Answers     []SubmittedAnswer `json:"answers,omitempty"`
}

// StartResult is returned by the create-or-resume call.
type StartResult struct {
	Message        string     `json:"message"`
	Submission     Submission `json:"submission"`
	OneTime        bool       `json:"one_time"`
	WarningMessage string     `json:"warning_message"`
}

// SubmitResult carries the authoritative outcome of a terminal submit.
type SubmitResult struct {
	Message    string     `json:"message"`
	Submission Submission `json:"submission"`
	TotalScore float64    `json:"total_score"`
	ShowScore  bool       `json:"show_score"`
}

// SubmissionView is the results-page read of a submission.
type SubmissionView struct {
	Submission         Submission `json:"submission"`
	ShowAnswers        bool       `json:"show_answers"`
	ShowCorrectAnswers bool       `json:"show_correct_answers"`
}

// LeaderboardUser is the public part of a ranked user.
type LeaderboardUser struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Email *string `json:"email"`
}

// LeaderboardEntry is one ranked submission.
type LeaderboardEntry struct {
	Rank        int             `json:"rank"`
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	TotalScore  float64         `json:"total_score"`
	SubmittedAt time.Time       `json:"submitted_at"`
	User        LeaderboardUser `json:"user"`
}

// LeaderboardStats summarizes all submitted attempts of a quiz.
type LeaderboardStats struct {
	TotalParticipants int       `json:"total_participants"`
	AverageScore      float64   `json:"average_score"`
	TopScore          float64   `json:"top_score"`
	ScoreDistribution []float64 `json:"score_distribution"`
}

// Leaderboard captures the ordered scoreboard for a quiz.
type Leaderboard struct {
	Entries []LeaderboardEntry `json:"leaderboard"`
	Stats   LeaderboardStats   `json:"stats"`
}

// Principal identifies the authenticated caller.
type Principal struct {
	UserID    int64
	Subject   string
	ExpiresAt *time.Time
}

// AttemptRecord is the archived summary of a finished attempt.
type AttemptRecord struct {
	SubmissionID int64            `json:"submission_id"`
	QuizID       int64            `json:"quiz_id"`
	UserID       int64            `json:"user_id"`
	Status       SubmissionStatus `json:"status"`
	TotalScore   float64          `json:"total_score"`
	StartedAt    time.Time        `json:"started_at"`
	SubmittedAt  *time.Time       `json:"submitted_at"`
	RecordedAt   time.Time        `json:"recorded_at"`
}
