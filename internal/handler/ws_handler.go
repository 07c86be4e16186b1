package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizcheck-backend/internal/response"
	"github.com/stemsi/quizcheck-backend/internal/service"
	ws "github.com/stemsi/quizcheck-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the live answering stream of a test.
type WSHandler struct {
	testService     *service.TestService
	questionService *service.QuestionService
	answerService   *service.AnswerService
	gradeService    *service.GradeService
	broker          ws.Broker
	log             zerolog.Logger
	upgrader        websocket.Upgrader
}

// WSServices groups the services the stream calls into.
type WSServices struct {
	Tests     *service.TestService
	Questions *service.QuestionService
	Answers   *service.AnswerService
	Grades    *service.GradeService
}

// NewWSHandler creates a new WSHandler. broker may be nil, which disables
// live grade events.
func NewWSHandler(svc WSServices, broker ws.Broker, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		testService:     svc.Tests,
		questionService: svc.Questions,
		answerService:   svc.Answers,
		gradeService:    svc.Grades,
		broker:          broker,
		log:             log.With().Str("component", "ws_handler").Logger(),
		upgrader:        buildUpgrader(allowedOrigins),
	}
}

// TestStream godoc
// WS /ws/v1/tests/:id/stream?token=
// Upgrades to WebSocket for answering and approving a test. The owner and
// admins also receive every approval and check result of the test; other
// users receive their own.
func (h *WSHandler) TestStream(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	testID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	test, err := h.testService.Get(c.Request.Context(), testID)
	if err != nil {
		response.FailError(c, err)
		return
	}
	manager := actor.CanManage(test)

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsLog := h.log.With().
		Int("user_id", actor.UserID).
		Str("test_id", testID.String()).
		Logger()
	wsLog.Info().Bool("manager", manager).Msg("User connected")

	if h.broker != nil {
		events, unsubscribe := h.broker.Subscribe(ctx, testID)
		defer unsubscribe()
		go h.forward(conn, events, actor.UserID, manager)
	}

	for {
		var msg json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			_ = conn.WriteError(string(response.ErrInvalidPayload), "malformed message")
			continue
		}

		switch env.Action {
		case ws.ActionAnswer:
			h.handleAnswer(ctx, conn, actor.UserID, testID, msg)
		case ws.ActionApprove:
			h.handleApprove(ctx, conn, wsLog, actor.UserID, testID)
		case ws.ActionPing:
			_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			_ = conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(env.Action))
		}
	}
}

// handleAnswer stores one answer through the same rules as the REST API.
func (h *WSHandler) handleAnswer(ctx context.Context, conn *ws.Conn, userID int, testID uuid.UUID, msg json.RawMessage) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		_ = conn.WriteError(string(response.ErrInvalidPayload), "malformed answer message")
		return
	}
	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		_ = conn.WriteError(string(response.ErrInvalidID), "invalid question_id format")
		return
	}

	q, err := h.questionService.Get(ctx, questionID)
	if err != nil {
		writeServiceError(conn, err)
		return
	}
	if q.TestID != testID {
		_ = conn.WriteError(string(response.ErrNotFound), fmt.Sprintf("question %s is not part of this test", questionID))
		return
	}

	answer, err := h.answerService.Submit(ctx, userID, questionID, req.Answer)
	if err != nil {
		writeServiceError(conn, err)
		return
	}
	_ = conn.WriteTyped(ws.AnswerSavedResponse{Event: ws.EventAnswerSaved, Answer: *answer})
}

// handleApprove locks the caller's answers and announces it on the stream.
func (h *WSHandler) handleApprove(ctx context.Context, conn *ws.Conn, wsLog zerolog.Logger, userID int, testID uuid.UUID) {
	grade, err := h.gradeService.Approve(ctx, userID, testID)
	if err != nil {
		writeServiceError(conn, err)
		return
	}

	ev := ws.GradeEvent{Event: ws.EventApproved, UserID: userID, Grade: grade}
	_ = conn.WriteTyped(ev)
	if h.broker != nil {
		if err := h.broker.Publish(ctx, testID, ev); err != nil {
			wsLog.Error().Err(err).Msg("Publish approval failed")
		}
	}
}

// forward relays broker events the user may see until the channel closes.
func (h *WSHandler) forward(conn *ws.Conn, events <-chan ws.GradeEvent, userID int, manager bool) {
	for ev := range events {
		own := ev.UserID == userID
		if !manager && !own {
			continue
		}
		// Own approvals are answered directly by handleApprove.
		if own && ev.Event == ws.EventApproved {
			continue
		}
		if err := conn.WriteTyped(ev); err != nil {
			return
		}
	}
}

func writeServiceError(conn *ws.Conn, err error) {
	_, code := response.FromError(err)
	msg := response.GetMessage(code)
	if code == response.ErrValidation || code == response.ErrTypeMismatch {
		msg = err.Error()
	}
	_ = conn.WriteError(string(code), msg)
}
