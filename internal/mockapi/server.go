package mockapi

import (
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"quizpoint/internal/domain"
)

// Calls counts the write endpoints hit, for assertions in tests.
type Calls struct {
	Starts  int
	Answers int
	Submits int
}

type quizRecord struct {
	quiz    domain.Quiz
	oneTime bool
}

// Server is an in-memory stand-in for the quiz backend.
type Server struct {
	now      func() time.Time
	validate *validator.Validate

	mu          sync.Mutex
	users       map[string]domain.LeaderboardUser
	quizzes     map[int64]quizRecord
	submissions map[int64]*domain.Submission
	byAttempt   map[attemptKey]int64
	submitted   map[string]submitResponse
	nextSubID   int64
	nextAnsID   int64
	calls       Calls
}

type attemptKey struct {
	quizID int64
	userID int64
}

func New(seed Seed) *Server {
	return NewWithClock(seed, time.Now)
}

// NewWithClock allows deterministic windows and timestamps in tests.
func NewWithClock(seed Seed, now func() time.Time) *Server {
	s := &Server{
		now:         now,
		validate:    validator.New(),
		users:       make(map[string]domain.LeaderboardUser),
		quizzes:     make(map[int64]quizRecord),
		submissions: make(map[int64]*domain.Submission),
		byAttempt:   make(map[attemptKey]int64),
		submitted:   make(map[string]submitResponse),
		nextSubID:   1,
		nextAnsID:   1,
	}
	for _, u := range seed.Users {
		email := u.Email
		s.users[u.Token] = domain.LeaderboardUser{ID: u.ID, Name: u.Name, Email: &email}
	}
	for _, q := range seed.Quizzes {
		s.quizzes[q.ID] = quizRecord{quiz: q.toDomain(), oneTime: q.OneTime}
	}
	return s
}

// Handler builds the gin router. All routes live under /api.
func (s *Server) Handler() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.Use(s.bearerAuth())
	api.GET("/quizzes", s.listQuizzes)
	api.GET("/quizzes/:id", s.getQuiz)
	api.POST("/quizzes/:id/start", s.startQuiz)
	api.GET("/quizzes/:id/leaderboard", s.leaderboard)
	api.POST("/submissions/:id/answer", s.saveAnswer)
	api.POST("/submissions/:id/submit", s.submit)
	api.GET("/submissions/:id", s.getSubmission)
	return r
}

// Calls returns a copy of the endpoint counters.
func (s *Server) Calls() Calls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// CloseQuiz flips a quiz to closed, as an admin would mid-window.
func (s *Server) CloseQuiz(quizID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.quizzes[quizID]; ok {
		rec.quiz.Status = domain.QuizClosed
		s.quizzes[quizID] = rec
	}
}

// publicQuiz strips answer keys from a definition.
func publicQuiz(q domain.Quiz) domain.Quiz {
	out := q
	out.Questions = make([]domain.Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = append([]domain.Option(nil), question.Options...)
		for j := range question.Options {
			question.Options[j].Correct = false
		}
		out.Questions[i] = question
	}
	return out
}

func copySubmission(sub *domain.Submission) domain.Submission {
	out := *sub
	out.Answers = append([]domain.SubmittedAnswer(nil), sub.Answers...)
	return out
}

func (s *Server) sortedQuizzesLocked() []domain.Quiz {
	out := make([]domain.Quiz, 0, len(s.quizzes))
	for _, rec := range s.quizzes {
		if rec.quiz.Status == domain.QuizDraft {
			continue
		}
		out = append(out, publicQuiz(rec.quiz))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
