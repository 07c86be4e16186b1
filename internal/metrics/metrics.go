// Package metrics exposes Prometheus collectors for HTTP traffic and grading
// activity.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stemsi/quizcheck-backend/internal/model"
)

const namespace = "quizcheck"

// Metrics holds the application collectors.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	answersScored   *prometheus.CounterVec
	recomputations  prometheus.Counter
	resultsQueued   prometheus.Counter
	gatherer        prometheus.Gatherer
}

// New creates the collectors and registers them on reg. Pass a fresh
// prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
		answersScored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "answers_scored_total",
				Help:      "Answers scored by question type",
			},
			[]string{"type"},
		),
		recomputations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grade_recomputations_total",
			Help:      "Grade rows recomputed",
		}),
		resultsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_mails_queued_total",
			Help:      "Result mails pushed to the notification queue",
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.requests, m.requestDuration, m.answersScored, m.recomputations, m.resultsQueued)
	return m
}

// AnswerScored counts one scored answer of type t.
func (m *Metrics) AnswerScored(t model.QuestionType) {
	m.answersScored.WithLabelValues(string(t)).Inc()
}

// GradeRecomputed counts one grade recomputation.
func (m *Metrics) GradeRecomputed() {
	m.recomputations.Inc()
}

// ResultQueued counts one queued result mail.
func (m *Metrics) ResultQueued() {
	m.resultsQueued.Inc()
}

// Middleware records request counts and latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.requests.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, endpoint).
			Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
