package mockapi

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"quizpoint/internal/domain"
)

// Seed is the initial content of the mock backend.
type Seed struct {
	Users   []SeedUser `yaml:"users" validate:"required,min=1,dive"`
	Quizzes []SeedQuiz `yaml:"quizzes" validate:"dive"`
}

type SeedUser struct {
	ID    int64  `yaml:"id" validate:"required,gt=0"`
	Name  string `yaml:"name" validate:"required"`
	Email string `yaml:"email" validate:"omitempty,email"`
	Token string `yaml:"token" validate:"required"`
}

type SeedQuiz struct {
	ID                int64          `yaml:"id" validate:"required,gt=0"`
	Title             string         `yaml:"title" validate:"required"`
	Description       string         `yaml:"description"`
	TimeLimitMinutes  *int           `yaml:"time_limit_minutes" validate:"omitempty,gt=0"`
	StartTime         time.Time      `yaml:"start_time" validate:"required"`
	EndTime           time.Time      `yaml:"end_time" validate:"required,gtfield=StartTime"`
	Status            string         `yaml:"status" validate:"required,oneof=draft published closed"`
	OneTime           bool           `yaml:"one_time"`
	ShowCorrectAnswer bool           `yaml:"show_correct_answer"`
	Questions         []SeedQuestion `yaml:"questions" validate:"dive"`
}

type SeedQuestion struct {
	ID      int64        `yaml:"id" validate:"required,gt=0"`
	Text    string       `yaml:"text" validate:"required"`
	Type    string       `yaml:"type" validate:"required,oneof=mcq descriptive"`
	Points  float64      `yaml:"points" validate:"gte=0"`
	Options []SeedOption `yaml:"options" validate:"required_if=Type mcq,dive"`
}

type SeedOption struct {
	ID      int64  `yaml:"id" validate:"required,gt=0"`
	Text    string `yaml:"text" validate:"required"`
	Correct bool   `yaml:"correct"`
}

// LoadSeed reads and validates a YAML seed file.
func LoadSeed(path string) (Seed, error) {
	var seed Seed
	data, err := os.ReadFile(path)
	if err != nil {
		return seed, err
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return seed, fmt.Errorf("parse seed %s: %w", path, err)
	}
	if err := validator.New().Struct(seed); err != nil {
		return seed, fmt.Errorf("invalid seed %s: %w", path, err)
	}
	return seed, nil
}

func (q SeedQuiz) toDomain() domain.Quiz {
	quiz := domain.Quiz{
		ID:                q.ID,
		Title:             q.Title,
		Description:       q.Description,
		TimeLimitMinutes:  q.TimeLimitMinutes,
		StartTime:         q.StartTime,
		EndTime:           q.EndTime,
		ShowCorrectAnswer: q.ShowCorrectAnswer,
		Status:            domain.QuizStatus(q.Status),
	}
	for i, sq := range q.Questions {
		points := sq.Points
		if points == 0 {
			points = 1
		}
		question := domain.Question{
			ID:         sq.ID,
			QuizID:     q.ID,
			Text:       sq.Text,
			Type:       domain.QuestionType(sq.Type),
			Points:     points,
			OrderIndex: i,
			IsRequired: true,
		}
		for j, so := range sq.Options {
			question.Options = append(question.Options, domain.Option{
				ID:         so.ID,
				QuestionID: sq.ID,
				Text:       so.Text,
				OrderIndex: j,
				Correct:    so.Correct,
			})
		}
		quiz.TotalPoints += points
		quiz.Questions = append(quiz.Questions, question)
	}
	return quiz
}

// SampleSeed provides demo data around now: one quiz of each availability.
func SampleSeed(now time.Time) Seed {
	ten := 10
	one := 1
	basics := []SeedQuestion{
		{ID: 101, Text: "What is the zero value of an int in Go?", Type: "mcq", Points: 1, Options: []SeedOption{
			{ID: 1011, Text: "0", Correct: true},
			{ID: 1012, Text: "nil"},
			{ID: 1013, Text: "undefined"},
		}},
		{ID: 102, Text: "Which keyword starts a goroutine?", Type: "mcq", Points: 1, Options: []SeedOption{
			{ID: 1021, Text: "async"},
			{ID: 1022, Text: "go", Correct: true},
			{ID: 1023, Text: "spawn"},
		}},
		{ID: 103, Text: "Describe what a buffered channel is.", Type: "descriptive", Points: 2},
	}
	return Seed{
		Users: []SeedUser{
			{ID: 1, Name: "Demo Student", Email: "demo@example.com", Token: "demo-token"},
			{ID: 2, Name: "Second Student", Email: "second@example.com", Token: "second-token"},
		},
		Quizzes: []SeedQuiz{
			{ID: 1, Title: "Go Basics", Description: "A short warm-up.", TimeLimitMinutes: &ten,
				StartTime: now.Add(-time.Hour), EndTime: now.Add(24 * time.Hour), Status: "published",
				OneTime: true, ShowCorrectAnswer: true, Questions: basics},
			{ID: 2, Title: "Lightning Round", TimeLimitMinutes: &one,
				StartTime: now.Add(-time.Hour), EndTime: now.Add(24 * time.Hour), Status: "published",
				Questions: basics[:2]},
			{ID: 3, Title: "Concurrency Deep Dive", StartTime: now.Add(48 * time.Hour),
				EndTime: now.Add(72 * time.Hour), Status: "published", Questions: basics},
			{ID: 4, Title: "Last Week's Quiz", StartTime: now.Add(-8 * 24 * time.Hour),
				EndTime: now.Add(-7 * 24 * time.Hour), Status: "published", Questions: basics},
			{ID: 5, Title: "Work In Progress", StartTime: now.Add(-time.Hour),
				EndTime: now.Add(24 * time.Hour), Status: "draft", Questions: basics},
		},
	}
}
