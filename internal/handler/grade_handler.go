package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizcheck-backend/internal/model"
	"github.com/stemsi/quizcheck-backend/internal/response"
	"github.com/stemsi/quizcheck-backend/internal/service"
	"github.com/stemsi/quizcheck-backend/internal/validator"
	ws "github.com/stemsi/quizcheck-backend/internal/websocket"
)

// GradeHandler handles approval, checking, ranking and result mail.
type GradeHandler struct {
	gradeService *service.GradeService
	broker       ws.Broker
	log          zerolog.Logger
}

// NewGradeHandler creates a new GradeHandler. Approvals and check results
// are announced on the test stream when broker is non-nil.
func NewGradeHandler(gradeService *service.GradeService, broker ws.Broker, log zerolog.Logger) *GradeHandler {
	return &GradeHandler{
		gradeService: gradeService,
		broker:       broker,
		log:          log.With().Str("component", "grade_handler").Logger(),
	}
}

type rankingQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1"`
}

// Approve godoc
// POST /api/v1/tests/:id/approve
// Locks the caller's answers in a test.
func (h *GradeHandler) Approve(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	testID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	grade, err := h.gradeService.Approve(c.Request.Context(), actor.UserID, testID)
	if err != nil {
		response.FailError(c, err)
		return
	}

	h.announce(c, testID, ws.GradeEvent{Event: ws.EventApproved, UserID: grade.UserID, Grade: grade})
	response.Success(c, http.StatusCreated, gin.H{"grade": grade})
}

// Check godoc
// POST /api/v1/tests/:id/check
// Scores the answers of a test, or of one user, and recomputes grades.
// Owner or admin only.
func (h *GradeHandler) Check(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	testID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.CheckRequest
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	result, err := h.gradeService.Check(c.Request.Context(), actor, testID, req.UserID)
	if err != nil {
		response.FailError(c, err)
		return
	}

	for i := range result.Grades {
		g := &result.Grades[i]
		h.announce(c, testID, ws.GradeEvent{Event: ws.EventChecked, UserID: g.UserID, Grade: g})
	}
	response.Success(c, http.StatusOK, result)
}

// Ranking godoc
// GET /api/v1/tests/:id/ranking?limit=
// Returns the best users by points; ties keep approval order.
func (h *GradeHandler) Ranking(c *gin.Context) {
	testID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var q rankingQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ranking, err := h.gradeService.Ranking(c.Request.Context(), testID, q.Limit)
	if err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"ranking": ranking})
}

// MyGrade godoc
// GET /api/v1/tests/:id/grade
// Returns the caller's state and grade in a test.
func (h *GradeHandler) MyGrade(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	testID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	status, err := h.gradeService.Status(c.Request.Context(), actor.UserID, testID)
	if err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, status)
}

// SendResults godoc
// POST /api/v1/tests/:id/send-email
// Queues a result mail for one user. Owner or admin only.
func (h *GradeHandler) SendResults(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	testID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.SendResultsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.gradeService.SendResults(c.Request.Context(), actor, testID, req.UserID); err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"message": "result mail queued"})
}

// announce publishes ev on the test stream. Failures are logged only.
func (h *GradeHandler) announce(c *gin.Context, testID uuid.UUID, ev ws.GradeEvent) {
	if h.broker == nil {
		return
	}
	if err := h.broker.Publish(c.Request.Context(), testID, ev); err != nil {
		h.log.Warn().Err(err).Str("test_id", testID.String()).Msg("Publish grade event failed")
	}
}
