package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/quizcheck-backend/internal/model"
	"github.com/stemsi/quizcheck-backend/internal/response"
	"github.com/stemsi/quizcheck-backend/internal/service"
	"github.com/stemsi/quizcheck-backend/internal/validator"
)

// TestHandler handles test management endpoints.
type TestHandler struct {
	testService *service.TestService
}

// NewTestHandler creates a new TestHandler.
func NewTestHandler(testService *service.TestService) *TestHandler {
	return &TestHandler{testService: testService}
}

type listTestsQuery struct {
	Page    int  `form:"page" binding:"omitempty,min=1"`
	PerPage int  `form:"per_page" binding:"omitempty,min=1,max=100"`
	Mine    bool `form:"mine"`
}

// ListTests godoc
// GET /api/v1/tests?page=&per_page=&mine=
// Lists tests, newest first. mine=true restricts to the caller's tests.
func (h *TestHandler) ListTests(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var q listTestsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	var owner *int
	if q.Mine {
		owner = &actor.UserID
	}

	tests, pagination, err := h.testService.List(c.Request.Context(), owner, q.Page, q.PerPage)
	if err != nil {
		response.FailError(c, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"tests": tests}, pagination)
}

// CreateTest godoc
// POST /api/v1/tests
// Creates a test owned by the caller.
func (h *TestHandler) CreateTest(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req model.CreateTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	test, err := h.testService.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"test": test})
}

// GetTest godoc
// GET /api/v1/tests/:id
func (h *TestHandler) GetTest(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	test, err := h.testService.Get(c.Request.Context(), id)
	if err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"test": test})
}

// UpdateTest godoc
// PUT /api/v1/tests/:id
// Renames a test or changes its description. Owner or admin only.
func (h *TestHandler) UpdateTest(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.UpdateTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	test, err := h.testService.Update(c.Request.Context(), actor, id, req)
	if err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"test": test})
}

// DeleteTest godoc
// DELETE /api/v1/tests/:id
// Deletes a test with its questions, answers and grades. Owner or admin only.
func (h *TestHandler) DeleteTest(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.testService.Delete(c.Request.Context(), actor, id); err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "test deleted"})
}
