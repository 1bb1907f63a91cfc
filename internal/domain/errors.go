package domain

import "errors"

var (
	// ErrNotAuthenticated is returned when there is no usable bearer token.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrQuizNotAvailable covers draft, closed, upcoming and expired quizzes.
	ErrQuizNotAvailable = errors.New("quiz not available")
	// ErrAlreadyParticipated means the user already holds a terminal submission for the quiz.
	ErrAlreadyParticipated = errors.New("already participated in quiz")
	// ErrSubmissionFailed wraps a retriable submit failure.
	ErrSubmissionFailed = errors.New("submission failed")
	// ErrAutosaveFailed wraps a best-effort answer save failure. Never fatal.
	ErrAutosaveFailed = errors.New("autosave failed")

	// ErrSessionTerminated is returned when an attempt is used after its terminal submit.
	ErrSessionTerminated = errors.New("quiz session already submitted")
	// ErrSessionNotActive is returned when answering or submitting before the attempt started.
	ErrSessionNotActive = errors.New("quiz session not active")
	// ErrSessionDisposed is returned once the owning view has gone away.
	ErrSessionDisposed = errors.New("quiz session disposed")
	// ErrStartInProgress is returned when Start is called again while the attempt is loading.
	ErrStartInProgress = errors.New("quiz session start in progress")
	// ErrSubmitInProgress is returned when another submit already owns the terminal transition.
	ErrSubmitInProgress = errors.New("submission already in progress")
	// ErrSubmitNotConfirmed is returned when the user declined the irreversible submit.
	ErrSubmitNotConfirmed = errors.New("submission not confirmed")

	// ErrQuizNotFound indicates the quiz could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSubmissionNotFound indicates the submission id is unknown to the backend.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrQuestionNotFound indicates an answered question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a selected option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrInvalidAnswer indicates the answer variant does not match the question type.
	ErrInvalidAnswer = errors.New("invalid answer")
)

// AvailabilityError carries the reason and human-readable message of a gated quiz.
type AvailabilityError struct {
	Reason  string
	Message string
}

func (e *AvailabilityError) Error() string {
	return ErrQuizNotAvailable.Error() + ": " + e.Message
}

func (e *AvailabilityError) Unwrap() error {
	return ErrQuizNotAvailable
}
