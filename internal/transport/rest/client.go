package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"quizpoint/internal/domain"
)

const DefaultBaseURL = "http://localhost:8000/api"

// ErrServiceUnavailable wraps transport-level failures (dial, timeout, reset).
var ErrServiceUnavailable = errors.New("quiz api unavailable")

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string][]string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return e.Message
}

// UserMessage is the backend's human-readable message.
func (e *APIError) UserMessage() string {
	return e.Message
}

// TokenSource provides the bearer token of the current user.
type TokenSource interface {
	Token() (string, bool)
}

// Client talks to the quiz backend over its JSON REST interface.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

func NewClient(baseURL string, httpClient *http.Client, tokens TokenSource) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, tokens: tokens}
}

// BaseURL returns the normalized backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type saveAnswerRequest struct {
	QuestionID       int64   `json:"question_id"`
	SelectedOptionID *int64  `json:"selected_option_id,omitempty"`
	AnswerText       *string `json:"answer_text,omitempty"`
}

// ListQuizzes returns the quizzes visible to the caller.
func (c *Client) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	var quizzes []domain.Quiz
	if err := c.doJSON(ctx, http.MethodGet, "/quizzes", nil, nil, &quizzes); err != nil {
		return nil, classify(err, nil)
	}
	return quizzes, nil
}

// GetQuiz fetches a quiz with its questions and the caller's participation facts.
func (c *Client) GetQuiz(ctx context.Context, quizID int64) (domain.QuizView, error) {
	var view domain.QuizView
	err := c.doJSON(ctx, http.MethodGet, "/quizzes/"+id(quizID), nil, nil, &view)
	if err != nil {
		return domain.QuizView{}, classify(err, map[int]error{
			http.StatusForbidden: domain.ErrQuizNotAvailable,
			http.StatusNotFound:  domain.ErrQuizNotFound,
		})
	}
	return view, nil
}

// LoadQuiz returns only the quiz definition, for caches.
func (c *Client) LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	view, err := c.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	return view.Quiz, nil
}

// StartQuiz creates or resumes the caller's submission.
func (c *Client) StartQuiz(ctx context.Context, quizID int64) (domain.StartResult, error) {
	var result domain.StartResult
	err := c.doJSON(ctx, http.MethodPost, "/quizzes/"+id(quizID)+"/start", nil, nil, &result)
	if err != nil {
		return domain.StartResult{}, classify(err, map[int]error{
			http.StatusBadRequest: domain.ErrAlreadyParticipated,
			http.StatusConflict:   domain.ErrAlreadyParticipated,
			http.StatusForbidden:  domain.ErrQuizNotAvailable,
			http.StatusNotFound:   domain.ErrQuizNotFound,
		})
	}
	return result, nil
}

// SaveAnswer upserts one answer of an in-progress submission.
func (c *Client) SaveAnswer(ctx context.Context, submissionID, questionID int64, answer domain.Answer) error {
	opt, text := answer.Payload()
	req := saveAnswerRequest{QuestionID: questionID, SelectedOptionID: opt, AnswerText: text}
	err := c.doJSON(ctx, http.MethodPost, "/submissions/"+id(submissionID)+"/answer", nil, req, nil)
	if err != nil {
		return classify(err, map[int]error{http.StatusNotFound: domain.ErrSubmissionNotFound})
	}
	return nil
}

// Submit finalizes the submission. The idempotency key stays the same for every
// retry of one attempt so a tolerant backend can collapse duplicates.
func (c *Client) Submit(ctx context.Context, submissionID int64, idempotencyKey string) (domain.SubmitResult, error) {
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}
	var result domain.SubmitResult
	err := c.doJSON(ctx, http.MethodPost, "/submissions/"+id(submissionID)+"/submit", headers, nil, &result)
	if err != nil {
		return domain.SubmitResult{}, classify(err, map[int]error{http.StatusNotFound: domain.ErrSubmissionNotFound})
	}
	return result, nil
}

// GetSubmission reads a submission for the results view.
func (c *Client) GetSubmission(ctx context.Context, submissionID int64) (domain.SubmissionView, error) {
	var view domain.SubmissionView
	err := c.doJSON(ctx, http.MethodGet, "/submissions/"+id(submissionID), nil, nil, &view)
	if err != nil {
		return domain.SubmissionView{}, classify(err, map[int]error{http.StatusNotFound: domain.ErrSubmissionNotFound})
	}
	return view, nil
}

// GetLeaderboard reads the ranking and stats of a quiz.
func (c *Client) GetLeaderboard(ctx context.Context, quizID int64) (domain.Leaderboard, error) {
	var lb domain.Leaderboard
	err := c.doJSON(ctx, http.MethodGet, "/quizzes/"+id(quizID)+"/leaderboard", nil, nil, &lb)
	if err != nil {
		return domain.Leaderboard{}, classify(err, map[int]error{http.StatusNotFound: domain.ErrQuizNotFound})
	}
	return lb, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, headers map[string]string, requestBody any, responseBody any) error {
	var body io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("X-Request-ID", uuid.NewString())
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token, ok := c.tokens.Token(); ok {
			request.Header.Set("Authorization", "Bearer "+token)
		}
	}
	for k, v := range headers {
		request.Header.Set(k, v)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrServiceUnavailable, err)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return decodeAPIError(response, raw)
	}
	if responseBody == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, responseBody); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(response *http.Response, raw []byte) *APIError {
	apiErr := &APIError{StatusCode: response.StatusCode}
	if gjson.ValidBytes(raw) {
		apiErr.Message = strings.TrimSpace(gjson.GetBytes(raw, "message").String())
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(gjson.GetBytes(raw, "error").String())
		}
		if fields := gjson.GetBytes(raw, "errors"); fields.IsObject() {
			apiErr.Fields = make(map[string][]string)
			fields.ForEach(func(key, value gjson.Result) bool {
				for _, msg := range value.Array() {
					apiErr.Fields[key.String()] = append(apiErr.Fields[key.String()], msg.String())
				}
				return true
			})
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = response.Status
	}
	return apiErr
}

// classify maps HTTP failures onto the domain taxonomy while keeping the API error in the chain.
func classify(err error, byStatus map[int]error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", domain.ErrNotAuthenticated, apiErr)
	}
	if sentinel, ok := byStatus[apiErr.StatusCode]; ok {
		return fmt.Errorf("%w: %w", sentinel, apiErr)
	}
	return err
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}
