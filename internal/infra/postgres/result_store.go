package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"quizpoint/internal/domain"
)

// ResultStore archives finished attempts in the attempt_results table.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// Record inserts the attempt once; a second record for the same submission is a no-op.
func (s *ResultStore) Record(ctx context.Context, rec domain.AttemptRecord) error {
	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attempt_results
			(submission_id, quiz_id, user_id, status, total_score, started_at, submitted_at, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (submission_id) DO NOTHING`,
		rec.SubmissionID, rec.QuizID, rec.UserID, string(rec.Status), rec.TotalScore,
		rec.StartedAt, rec.SubmittedAt, recordedAt)
	if err != nil {
		return fmt.Errorf("record attempt %d: %w", rec.SubmissionID, err)
	}
	return nil
}

// History returns a user's attempts, newest first. A zero userID matches every user
// and a non-positive limit returns all.
func (s *ResultStore) History(ctx context.Context, userID int64, limit int) ([]domain.AttemptRecord, error) {
	query := `
		SELECT submission_id, quiz_id, user_id, status, total_score, started_at, submitted_at, recorded_at
		FROM attempt_results
		WHERE ($1::bigint = 0 OR user_id = $1)
		ORDER BY recorded_at DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AttemptRecord, 0)
	for rows.Next() {
		var (
			rec    domain.AttemptRecord
			status string
		)
		if err := rows.Scan(&rec.SubmissionID, &rec.QuizID, &rec.UserID, &status, &rec.TotalScore,
			&rec.StartedAt, &rec.SubmittedAt, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.Status = domain.SubmissionStatus(status)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return out, nil
}
