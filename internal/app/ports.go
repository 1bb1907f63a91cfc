package app

import (
	"context"

	"quizpoint/internal/domain"
)

// QuizAPI is the backend surface a quiz attempt needs.
type QuizAPI interface {
	GetQuiz(ctx context.Context, quizID int64) (domain.QuizView, error)
	StartQuiz(ctx context.Context, quizID int64) (domain.StartResult, error)
	SaveAnswer(ctx context.Context, submissionID, questionID int64, answer domain.Answer) error
	Submit(ctx context.Context, submissionID int64, idempotencyKey string) (domain.SubmitResult, error)
}

// ReadAPI covers the read-only pages around an attempt.
type ReadAPI interface {
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
	GetSubmission(ctx context.Context, submissionID int64) (domain.SubmissionView, error)
	GetLeaderboard(ctx context.Context, quizID int64) (domain.Leaderboard, error)
}

// BackendAPI is everything QuizService talks to.
type BackendAPI interface {
	QuizAPI
	ReadAPI
}

// CurrentSession is the read-only view of the signed-in user.
type CurrentSession interface {
	Principal() (domain.Principal, error)
}

// QuizRepository loads quiz definitions (from cache/backing API).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
}

// AnswerJournal mirrors the answer map of an attempt locally so a reload never loses edits.
type AnswerJournal interface {
	Record(ctx context.Context, submissionID int64, rec domain.AnswerRecord) error
	Load(ctx context.Context, submissionID int64) ([]domain.AnswerRecord, error)
	Drop(ctx context.Context, submissionID int64) error
}

// ResultArchive keeps a local history of finished attempts.
type ResultArchive interface {
	Record(ctx context.Context, rec domain.AttemptRecord) error
	History(ctx context.Context, userID int64, limit int) ([]domain.AttemptRecord, error)
}
