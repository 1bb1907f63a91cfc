package memory

import (
	"context"
	"sort"
	"sync"

	"quizpoint/internal/domain"
)

// Archive keeps finished attempts for the lifetime of the process.
type Archive struct {
	mu      sync.RWMutex
	records map[int64]domain.AttemptRecord
}

func NewArchive() *Archive {
	return &Archive{records: make(map[int64]domain.AttemptRecord)}
}

// Record stores the first record seen per submission; later ones are ignored.
func (a *Archive) Record(_ context.Context, rec domain.AttemptRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.records[rec.SubmissionID]; !ok {
		a.records[rec.SubmissionID] = rec
	}
	return nil
}

// History returns attempts newest first. A zero userID matches every user, for
// opaque tokens whose identity is only known to the backend.
func (a *Archive) History(_ context.Context, userID int64, limit int) ([]domain.AttemptRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.AttemptRecord, 0)
	for _, rec := range a.records {
		if userID == 0 || rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RecordedAt.After(out[j].RecordedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
