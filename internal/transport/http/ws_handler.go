package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"quizpoint/internal/app"
	"quizpoint/internal/domain"
)

// WSHandler bridges one quiz attempt per websocket to a browser UI.
type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID int64   `json:"questionId"`
	OptionID   *int64  `json:"optionId"`
	Text       *string `json:"text"`
}

type navigatePayload struct {
	Index int `json:"index"`
}

type submitPayload struct {
	Confirmed bool `json:"confirmed"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type blockedPayload struct {
	Reason  app.BlockReason `json:"reason"`
	Message string          `json:"message"`
}

type submittedPayload struct {
	Submission domain.Submission `json:"submission"`
	TotalScore float64           `json:"totalScore"`
	ShowScore  bool              `json:"showScore"`
}

// ServeWS upgrades the request, starts the attempt at ?quizId= and relays snapshots
// until the socket closes. Closing the socket disposes the attempt.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID, err := strconv.ParseInt(r.URL.Query().Get("quizId"), 10, 64)
	if err != nil || quizID <= 0 {
		http.Error(w, "missing or invalid quizId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	session := h.service.Open(quizID)
	defer session.Dispose()

	updates, cancel := session.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		submitted := false
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				msgs := []outboundMessage[any]{{Type: "state", Payload: snap}}
				if snap.State == app.StateTerminated && snap.Result != nil && !submitted {
					submitted = true
					msgs = append(msgs, outboundMessage[any]{Type: "submitted", Payload: submittedPayload{
						Submission: snap.Result.Submission,
						TotalScore: snap.Result.TotalScore,
						ShowScore:  snap.Result.ShowScore,
					}})
				}
				for _, msg := range msgs {
					select {
					case send <- msg:
					case <-closeSignals:
						return
					}
				}
			case <-closeSignals:
				return
			}
		}
	}()

	if h.start(r.Context(), session, send) {
		for {
			var inbound inboundMessage
			if err := conn.ReadJSON(&inbound); err != nil {
				break
			}
			if msg, ok := h.handle(r.Context(), session, inbound); ok {
				send <- msg
			}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// start reports whether the attempt became active and the read loop should run.
func (h *WSHandler) start(ctx context.Context, session *app.Session, send chan<- outboundMessage[any]) bool {
	snap, err := session.Start(ctx)
	if err != nil {
		if snap.State == app.StateBlocked {
			send <- outboundMessage[any]{Type: "blocked", Payload: blockedPayload{Reason: snap.BlockReason, Message: snap.BlockMessage}}
		} else {
			send <- errorMessage(err)
		}
		return false
	}
	send <- outboundMessage[any]{Type: "quiz", Payload: session.Quiz()}
	return true
}

// handle applies one inbound command. State changes reach the client through the
// snapshot stream, so only failures produce a direct reply.
func (h *WSHandler) handle(ctx context.Context, session *app.Session, inbound inboundMessage) (outboundMessage[any], bool) {
	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload", Code: "bad_request"}}, true
		}
		var answer domain.Answer
		switch {
		case payload.OptionID != nil && payload.Text == nil:
			answer = domain.ChoiceAnswer{OptionID: *payload.OptionID}
		case payload.Text != nil && payload.OptionID == nil:
			answer = domain.TextAnswer{Text: *payload.Text}
		default:
			return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "answer needs exactly one of optionId or text", Code: "bad_request"}}, true
		}
		if err := session.SetAnswer(ctx, payload.QuestionID, answer); err != nil {
			return errorMessage(err), true
		}
	case "navigate":
		var payload navigatePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid navigate payload", Code: "bad_request"}}, true
		}
		if _, err := session.GoTo(payload.Index); err != nil {
			return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error(), Code: "bad_request"}}, true
		}
	case "submit":
		var payload submitPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid submit payload", Code: "bad_request"}}, true
		}
		confirm := func(context.Context, string) bool { return payload.Confirmed }
		if _, err := session.Submit(ctx, confirm); err != nil {
			return errorMessage(err), true
		}
	default:
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type", Code: "bad_request"}}, true
	}
	return outboundMessage[any]{}, false
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error(), Code: errorCode(err)}}
}

func errorCode(err error) string {
	codes := []struct {
		target error
		code   string
	}{
		{domain.ErrNotAuthenticated, "not_authenticated"},
		{domain.ErrSubmissionFailed, "submission_failed"},
		{domain.ErrSubmitNotConfirmed, "not_confirmed"},
		{domain.ErrSubmitInProgress, "submit_in_progress"},
		{domain.ErrSessionTerminated, "terminated"},
		{domain.ErrSessionNotActive, "not_active"},
		{domain.ErrSessionDisposed, "disposed"},
		{domain.ErrQuestionNotFound, "question_not_found"},
		{domain.ErrOptionNotFound, "option_not_found"},
		{domain.ErrInvalidAnswer, "invalid_answer"},
		{domain.ErrQuizNotFound, "quiz_not_found"},
	}
	for _, c := range codes {
		if errors.Is(err, c.target) {
			return c.code
		}
	}
	return "internal"
}
