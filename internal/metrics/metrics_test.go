package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stemsi/quizcheck-backend/internal/model"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", m.Handler())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", w.Code)
	}
	return w.Body.String()
}

func TestDomainCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.AnswerScored(model.QuestionTypeScale)
	m.AnswerScored(model.QuestionTypeScale)
	m.AnswerScored(model.QuestionTypeOpen)
	m.GradeRecomputed()

	out := scrape(t, m)
	for _, want := range []string{
		`quizcheck_answers_scored_total{type="SC"} 2`,
		`quizcheck_answers_scored_total{type="OP"} 1`,
		`quizcheck_grade_recomputations_total 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(prometheus.NewRegistry())

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	out := scrape(t, m)
	if !strings.Contains(out, `quizcheck_http_requests_total{endpoint="/ping",method="GET",status="200"} 1`) {
		t.Errorf("metrics output missing /ping counter:\n%s", out)
	}
}
