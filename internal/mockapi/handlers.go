package mockapi

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"quizpoint/internal/domain"
)

const userKey = "mockapi.user"

type errorResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

type startResponse struct {
	Message        string            `json:"message"`
	Submission     domain.Submission `json:"submission"`
	OneTime        bool              `json:"one_time"`
	WarningMessage string            `json:"warning_message,omitempty"`
}

type submitResponse struct {
	Message    string            `json:"message"`
	Submission domain.Submission `json:"submission"`
	TotalScore float64           `json:"total_score"`
	ShowScore  bool              `json:"show_score"`
}

type answerRequest struct {
	QuestionID       int64   `json:"question_id" validate:"required,gt=0"`
	SelectedOptionID *int64  `json:"selected_option_id" validate:"required_without=AnswerText,excluded_with=AnswerText"`
	AnswerText       *string `json:"answer_text" validate:"required_without=SelectedOptionID"`
}

func (s *Server) bearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Message: "Unauthenticated."})
			return
		}
		s.mu.Lock()
		user, ok := s.users[strings.TrimSpace(parts[1])]
		s.mu.Unlock()
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Message: "Unauthenticated."})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) domain.LeaderboardUser {
	return c.MustGet(userKey).(domain.LeaderboardUser)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, errorResponse{Message: "Not found."})
		return 0, false
	}
	return id, true
}

func (s *Server) listQuizzes(c *gin.Context) {
	s.mu.Lock()
	quizzes := s.sortedQuizzesLocked()
	s.mu.Unlock()
	c.JSON(http.StatusOK, quizzes)
}

func (s *Server) getQuiz(c *gin.Context) {
	quizID, ok := pathID(c)
	if !ok {
		return
	}
	user := currentUser(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.quizzes[quizID]
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Message: "Quiz not found."})
		return
	}
	view := domain.QuizView{Quiz: publicQuiz(rec.quiz)}
	if subID, ok := s.byAttempt[attemptKey{quizID, user.ID}]; ok {
		view.HasParticipated = true
		id := subID
		view.SubmissionID = &id
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) startQuiz(c *gin.Context) {
	quizID, ok := pathID(c)
	if !ok {
		return
	}
	user := currentUser(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Starts++

	rec, ok := s.quizzes[quizID]
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Message: "Quiz not found."})
		return
	}
	now := s.now()
	if rec.quiz.Status != domain.QuizPublished || now.Before(rec.quiz.StartTime) || now.After(rec.quiz.EndTime) {
		c.JSON(http.StatusForbidden, errorResponse{Message: "Quiz is not available."})
		return
	}

	if subID, ok := s.byAttempt[attemptKey{quizID, user.ID}]; ok {
		sub := s.submissions[subID]
		if sub.Status.Terminal() {
			c.JSON(http.StatusBadRequest, errorResponse{Message: "You have already participated in this quiz."})
			return
		}
		c.JSON(http.StatusOK, s.startResponse("Quiz resumed", rec, sub))
		return
	}

	sub := &domain.Submission{
		ID:        s.nextSubID,
		QuizID:    quizID,
		UserID:    user.ID,
		AttemptNo: 1,
		Status:    domain.SubmissionInProgress,
		StartedAt: now,
	}
	s.nextSubID++
	s.submissions[sub.ID] = sub
	s.byAttempt[attemptKey{quizID, user.ID}] = sub.ID
	c.JSON(http.StatusCreated, s.startResponse("Quiz started", rec, sub))
}

func (s *Server) startResponse(message string, rec quizRecord, sub *domain.Submission) startResponse {
	resp := startResponse{Message: message, Submission: copySubmission(sub), OneTime: rec.oneTime}
	if rec.oneTime {
		resp.WarningMessage = "This quiz can only be taken once. Make sure to complete it before submitting."
	}
	return resp
}

// ownedSubmissionLocked resolves the path submission and checks it belongs to the caller.
func (s *Server) ownedSubmissionLocked(c *gin.Context) (*domain.Submission, bool) {
	subID, ok := pathID(c)
	if !ok {
		return nil, false
	}
	sub, ok := s.submissions[subID]
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Message: "Submission not found."})
		return nil, false
	}
	if sub.UserID != currentUser(c).ID {
		c.JSON(http.StatusForbidden, errorResponse{Message: "This submission does not belong to you."})
		return nil, false
	}
	return sub, true
}

func (s *Server) saveAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Message: "Malformed request body."})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, validationResponse(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Answers++

	sub, ok := s.ownedSubmissionLocked(c)
	if !ok {
		return
	}
	if sub.Status.Terminal() {
		c.JSON(http.StatusBadRequest, errorResponse{Message: "Submission is already finalized."})
		return
	}
	question, ok := s.quizzes[sub.QuizID].quiz.Question(req.QuestionID)
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, errorResponse{
			Message: "The given data was invalid.",
			Errors:  map[string][]string{"question_id": {"The selected question id is invalid."}},
		})
		return
	}
	if req.SelectedOptionID != nil {
		if _, ok := question.Option(*req.SelectedOptionID); !ok {
			c.JSON(http.StatusUnprocessableEntity, errorResponse{
				Message: "The given data was invalid.",
				Errors:  map[string][]string{"selected_option_id": {"The selected option id is invalid."}},
			})
			return
		}
	}

	now := s.now()
	for i := range sub.Answers {
		if sub.Answers[i].QuestionID == req.QuestionID {
			sub.Answers[i].SelectedOptionID = req.SelectedOptionID
			sub.Answers[i].AnswerText = req.AnswerText
			sub.Answers[i].AnsweredAt = &now
			c.JSON(http.StatusOK, gin.H{"message": "Answer saved", "answer": sub.Answers[i]})
			return
		}
	}
	answer := domain.SubmittedAnswer{
		ID:               s.nextAnsID,
		SubmissionID:     sub.ID,
		QuestionID:       req.QuestionID,
		SelectedOptionID: req.SelectedOptionID,
		AnswerText:       req.AnswerText,
		AnsweredAt:       &now,
	}
	s.nextAnsID++
	sub.Answers = append(sub.Answers, answer)
	c.JSON(http.StatusOK, gin.H{"message": "Answer saved", "answer": answer})
}

func (s *Server) submit(c *gin.Context) {
	key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Submits++

	sub, ok := s.ownedSubmissionLocked(c)
	if !ok {
		return
	}
	if key != "" {
		if resp, ok := s.submitted[key]; ok && resp.Submission.ID == sub.ID {
			c.JSON(http.StatusOK, resp)
			return
		}
	}
	if sub.Status.Terminal() {
		c.JSON(http.StatusBadRequest, errorResponse{Message: "Submission is already finalized."})
		return
	}

	quiz := s.quizzes[sub.QuizID].quiz
	total := 0.0
	for i := range sub.Answers {
		a := &sub.Answers[i]
		question, ok := quiz.Question(a.QuestionID)
		if !ok || question.Type != domain.QuestionMCQ || a.SelectedOptionID == nil {
			continue
		}
		opt, _ := question.Option(*a.SelectedOptionID)
		correct := opt.Correct
		a.IsCorrect = &correct
		if correct {
			a.ScoreAwarded = question.Points
			total += question.Points
		}
	}
	now := s.now()
	sub.Status = domain.SubmissionSubmitted
	sub.SubmittedAt = &now
	sub.TotalScore = total

	resp := submitResponse{
		Message:    "Quiz submitted successfully",
		Submission: copySubmission(sub),
		TotalScore: total,
		ShowScore:  true,
	}
	if key != "" {
		s.submitted[key] = resp
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getSubmission(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.ownedSubmissionLocked(c)
	if !ok {
		return
	}
	final := sub.Status.Terminal()
	c.JSON(http.StatusOK, domain.SubmissionView{
		Submission:         copySubmission(sub),
		ShowAnswers:        final,
		ShowCorrectAnswers: final && s.quizzes[sub.QuizID].quiz.ShowCorrectAnswer,
	})
}

func (s *Server) leaderboard(c *gin.Context) {
	quizID, ok := pathID(c)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quizID]; !ok {
		c.JSON(http.StatusNotFound, errorResponse{Message: "Quiz not found."})
		return
	}

	users := make(map[int64]domain.LeaderboardUser, len(s.users))
	for _, u := range s.users {
		users[u.ID] = u
	}
	entries := make([]domain.LeaderboardEntry, 0)
	for _, sub := range s.submissions {
		if sub.QuizID != quizID || sub.Status != domain.SubmissionSubmitted || sub.SubmittedAt == nil {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{
			ID:          sub.ID,
			UserID:      sub.UserID,
			TotalScore:  sub.TotalScore,
			SubmittedAt: *sub.SubmittedAt,
			User:        users[sub.UserID],
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		return entries[i].SubmittedAt.Before(entries[j].SubmittedAt)
	})

	stats := domain.LeaderboardStats{TotalParticipants: len(entries), ScoreDistribution: make([]float64, 0, len(entries))}
	sum := 0.0
	for i := range entries {
		entries[i].Rank = i + 1
		sum += entries[i].TotalScore
		stats.ScoreDistribution = append(stats.ScoreDistribution, entries[i].TotalScore)
		if entries[i].TotalScore > stats.TopScore {
			stats.TopScore = entries[i].TotalScore
		}
	}
	if len(entries) > 0 {
		stats.AverageScore = sum / float64(len(entries))
	}
	c.JSON(http.StatusOK, domain.Leaderboard{Entries: entries, Stats: stats})
}

func validationResponse(err error) errorResponse {
	resp := errorResponse{Message: "The given data was invalid.", Errors: map[string][]string{}}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		resp.Errors["body"] = []string{err.Error()}
		return resp
	}
	for _, fe := range verrs {
		field := fieldName(fe.Field())
		resp.Errors[field] = append(resp.Errors[field], "The "+strings.ReplaceAll(field, "_", " ")+" field failed the "+fe.Tag()+" rule.")
	}
	return resp
}

func fieldName(goName string) string {
	switch goName {
	case "QuestionID":
		return "question_id"
	case "SelectedOptionID":
		return "selected_option_id"
	case "AnswerText":
		return "answer_text"
	}
	return strings.ToLower(goName)
}
