package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/quizcheck-backend/internal/model"
	"github.com/stemsi/quizcheck-backend/internal/response"
	"github.com/stemsi/quizcheck-backend/internal/service"
	"github.com/stemsi/quizcheck-backend/internal/validator"
)

// AnswerHandler handles answer submission and review endpoints.
type AnswerHandler struct {
	answerService *service.AnswerService
}

// NewAnswerHandler creates a new AnswerHandler.
func NewAnswerHandler(answerService *service.AnswerService) *AnswerHandler {
	return &AnswerHandler{answerService: answerService}
}

type answersQuery struct {
	UserID *int `form:"user_id" binding:"omitempty,min=1"`
}

// SubmitAnswer godoc
// PUT /api/v1/questions/:id/answer
// Creates or replaces the caller's answer. Rejected once the caller has
// approved the test.
func (h *AnswerHandler) SubmitAnswer(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	questionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	answer, err := h.answerService.Submit(c.Request.Context(), actor.UserID, questionID, req.Answer)
	if err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"answer": answer})
}

// MyAnswer godoc
// GET /api/v1/questions/:id/answer
// Returns the caller's answer to one question.
func (h *AnswerHandler) MyAnswer(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	questionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	answer, err := h.answerService.Get(c.Request.Context(), actor.UserID, questionID)
	if err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"answer": answer})
}

// DeleteAnswer godoc
// DELETE /api/v1/questions/:id/answer
func (h *AnswerHandler) DeleteAnswer(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	questionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.answerService.Delete(c.Request.Context(), actor.UserID, questionID); err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "answer deleted"})
}

// MyAnswers godoc
// GET /api/v1/tests/:id/my-answers
func (h *AnswerHandler) MyAnswers(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	testID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	answers, err := h.answerService.ListMine(c.Request.Context(), actor.UserID, testID)
	if err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"answers": answers})
}

// TestAnswers godoc
// GET /api/v1/tests/:id/answers?user_id=
// Lists every answer in a test. Owner or admin only.
func (h *AnswerHandler) TestAnswers(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	testID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var q answersQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	answers, err := h.answerService.ListForTest(c.Request.Context(), actor, testID, q.UserID)
	if err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"answers": answers})
}

// QuestionAnswers godoc
// GET /api/v1/tests/:id/answers/:number
// Lists every answer to one question. Owner or admin only.
func (h *AnswerHandler) QuestionAnswers(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	testID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	number, ok := intParam(c, "number")
	if !ok {
		return
	}

	answers, err := h.answerService.ListForQuestion(c.Request.Context(), actor, testID, number)
	if err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"answers": answers})
}
