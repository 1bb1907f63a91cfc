package memory

import (
	"context"
	"sort"
	"sync"

	"quizpoint/internal/domain"
)

// Journal is an in-memory implementation of app.AnswerJournal.
// It survives a controller being replaced but not the process.
type Journal struct {
	mu      sync.RWMutex
	entries map[int64]map[int64]domain.AnswerRecord
}

func NewJournal() *Journal {
	return &Journal{
		entries: make(map[int64]map[int64]domain.AnswerRecord),
	}
}

func (j *Journal) Record(_ context.Context, submissionID int64, rec domain.AnswerRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	answers, ok := j.entries[submissionID]
	if !ok {
		answers = make(map[int64]domain.AnswerRecord)
		j.entries[submissionID] = answers
	}
	answers[rec.QuestionID] = rec
	return nil
}

func (j *Journal) Load(_ context.Context, submissionID int64) ([]domain.AnswerRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	answers := j.entries[submissionID]
	out := make([]domain.AnswerRecord, 0, len(answers))
	for _, rec := range answers {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].QuestionID < out[k].QuestionID })
	return out, nil
}

func (j *Journal) Drop(_ context.Context, submissionID int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.entries, submissionID)
	return nil
}
