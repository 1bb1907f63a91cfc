package redis

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quizpoint/internal/domain"
)

// Journal mirrors in-progress answers into a Redis hash per submission so a crashed
// or restarted client can replay edits the backend never acknowledged.
//
//	HSET journal:{submissionID} {questionID} {answer json}
type Journal struct {
	client *redis.Client
	ttl    time.Duration
}

func NewJournal(client *redis.Client, ttl time.Duration) *Journal {
	return &Journal{client: client, ttl: ttl}
}

func (j *Journal) Record(ctx context.Context, submissionID int64, rec domain.AnswerRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := journalKey(submissionID)
	pipe := j.client.TxPipeline()
	pipe.HSet(ctx, key, strconv.FormatInt(rec.QuestionID, 10), payload)
	if j.ttl > 0 {
		pipe.Expire(ctx, key, j.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (j *Journal) Load(ctx context.Context, submissionID int64) ([]domain.AnswerRecord, error) {
	fields, err := j.client.HGetAll(ctx, journalKey(submissionID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.AnswerRecord, 0, len(fields))
	for field, raw := range fields {
		var rec domain.AnswerRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			log.Printf("skip journal entry %s of submission %d: %v", field, submissionID, err)
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].QuestionID < out[b].QuestionID })
	return out, nil
}

func (j *Journal) Drop(ctx context.Context, submissionID int64) error {
	return j.client.Del(ctx, journalKey(submissionID)).Err()
}

func journalKey(submissionID int64) string {
	return "journal:" + strconv.FormatInt(submissionID, 10)
}
