package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/quizcheck-backend/internal/model"
)

func bindQuestion(t *testing.T, body string) map[string]string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	Setup()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	var req model.CreateQuestionRequest
	return Bind(c, &req)
}

func TestBind_QuestionType(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
		wantMsg   string
	}{
		{name: "valid", body: `{"number":1,"content":"c","type":"SC","proper_answer":3}`},
		{name: "unknown type", body: `{"number":1,"content":"c","type":"XX"}`, wantField: "type", wantMsg: "one of BO, CM, CO, OP, SC"},
		{name: "missing number", body: `{"content":"c","type":"OP"}`, wantField: "number", wantMsg: "required"},
		{name: "malformed json", body: `{"number":`, wantField: "detail"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fields := bindQuestion(t, tc.body)
			if tc.wantField == "" {
				if fields != nil {
					t.Fatalf("fields = %v, want none", fields)
				}
				return
			}
			msg, ok := fields[tc.wantField]
			if !ok {
				t.Fatalf("fields = %v, want %q", fields, tc.wantField)
			}
			if !strings.Contains(msg, tc.wantMsg) {
				t.Errorf("%s = %q, want it to mention %q", tc.wantField, msg, tc.wantMsg)
			}
		})
	}
}
