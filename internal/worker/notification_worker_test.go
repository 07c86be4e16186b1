package worker

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizcheck-backend/internal/config"
	"github.com/stemsi/quizcheck-backend/internal/model"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []model.ResultJob
}

func (q *fakeQueue) Push(_ context.Context, job model.ResultJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Pop(ctx context.Context, timeout time.Duration) (*model.ResultJob, error) {
	q.mu.Lock()
	if len(q.jobs) > 0 {
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()
		return &job, nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	}
}

func (q *fakeQueue) pending() []model.ResultJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.ResultJob(nil), q.jobs...)
}

type fakeSource struct {
	view *model.ResultView
	err  error
}

func (s *fakeSource) ResultView(_ context.Context, testID uuid.UUID, userID int) (*model.ResultView, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.view, nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func sampleView() *model.ResultView {
	text := "Warsaw"
	yes := true
	return &model.ResultView{
		User: model.User{ID: 7, Username: "ala", Email: "ala@example.com"},
		Test: model.Test{ID: uuid.New(), Name: "Geography <1>", QuestionCount: 2},
		Grade: &model.Grade{
			Points: 1.5,
			Grade:  0.75,
		},
		Answers: []model.AnswerView{
			{Answer: model.Answer{Type: model.QuestionTypeOpen, Points: 1}, Number: 1, Submitted: &text},
			{Answer: model.Answer{Type: model.QuestionTypeBoolean, Points: 0.5}, Number: 2, Submitted: &yes},
		},
	}
}

func TestHandle(t *testing.T) {
	job := model.ResultJob{TestID: uuid.New(), UserID: 7}

	tests := []struct {
		name        string
		source      *fakeSource
		mailErr     error
		attempts    int
		wantSent    int
		wantRequeue int
	}{
		{name: "mailed", source: &fakeSource{view: sampleView()}, wantSent: 1},
		{name: "missing result dropped", source: &fakeSource{err: fmt.Errorf("%w: grade", model.ErrNotFound)}},
		{name: "mail failure requeued", source: &fakeSource{view: sampleView()}, mailErr: errors.New("relay down"), wantRequeue: 1},
		{name: "last attempt dropped", source: &fakeSource{view: sampleView()}, mailErr: errors.New("relay down"), attempts: maxAttempts - 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := &fakeQueue{}
			m := &fakeMailer{err: tc.mailErr}
			w := NewNotificationWorker(q, tc.source, m, zerolog.Nop())

			in := job
			in.Attempts = tc.attempts
			w.handle(context.Background(), in)

			if got := m.count(); got != tc.wantSent {
				t.Errorf("sent = %d, want %d", got, tc.wantSent)
			}
			pending := q.pending()
			if len(pending) != tc.wantRequeue {
				t.Fatalf("requeued = %d, want %d", len(pending), tc.wantRequeue)
			}
			if tc.wantRequeue > 0 && pending[0].Attempts != tc.attempts+1 {
				t.Errorf("attempts = %d, want %d", pending[0].Attempts, tc.attempts+1)
			}
		})
	}
}

func TestHandle_SkipsUserWithoutEmail(t *testing.T) {
	view := sampleView()
	view.User.Email = ""
	m := &fakeMailer{}
	q := &fakeQueue{}
	w := NewNotificationWorker(q, &fakeSource{view: view}, m, zerolog.Nop())

	w.handle(context.Background(), model.ResultJob{TestID: view.Test.ID, UserID: 7})

	if m.count() != 0 || len(q.pending()) != 0 {
		t.Errorf("sent = %d, requeued = %d, want nothing", m.count(), len(q.pending()))
	}
}

func TestStart_DrainsQueueAndStops(t *testing.T) {
	q := &fakeQueue{}
	for i := 0; i < 3; i++ {
		_ = q.Push(context.Background(), model.ResultJob{TestID: uuid.New(), UserID: i + 1})
	}
	m := &fakeMailer{}
	w := NewNotificationWorker(q, &fakeSource{view: sampleView()}, m, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for m.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if !w.Wait(2 * time.Second) {
		t.Fatal("worker did not stop")
	}
	if got := m.count(); got != 3 {
		t.Errorf("sent = %d, want 3", got)
	}
}

func TestRenderResult(t *testing.T) {
	view := sampleView()
	msg, err := RenderResult(view)
	if err != nil {
		t.Fatalf("RenderResult: %v", err)
	}
	if msg.To != "ala@example.com" {
		t.Errorf("to = %q", msg.To)
	}
	if msg.Subject != "Your results for Geography <1>" {
		t.Errorf("subject = %q", msg.Subject)
	}
	for _, want := range []string{"Geography &lt;1&gt;", "1.50 / 2", "75%", "Warsaw", "yes"} {
		if !strings.Contains(msg.HTML, want) {
			t.Errorf("html missing %q", want)
		}
	}
}

func TestRenderResult_WithoutGrade(t *testing.T) {
	view := sampleView()
	view.Grade = nil
	view.Answers = nil
	msg, err := RenderResult(view)
	if err != nil {
		t.Fatalf("RenderResult: %v", err)
	}
	if !strings.Contains(msg.HTML, "not approved") || !strings.Contains(msg.HTML, "No answers.") {
		t.Errorf("unexpected html:\n%s", msg.HTML)
	}
}

func TestFormatAnswer(t *testing.T) {
	s, b, n := "x", false, 4
	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "text", in: &s, want: "x"},
		{name: "bool", in: &b, want: "no"},
		{name: "scale", in: &n, want: "4"},
		{name: "choices", in: []uuid.UUID{id}, want: id.String()},
		{name: "nil text", in: (*string)(nil), want: "-"},
		{name: "unknown", in: 3.5, want: "-"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := formatAnswer(tc.in); got != tc.want {
				t.Errorf("formatAnswer = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSMTPMailer_Send(t *testing.T) {
	var (
		gotAddr string
		gotAuth smtp.Auth
		gotTo   []string
		gotMsg  string
	)
	m := NewSMTPMailer(config.SMTPConfig{Host: "mail.local", Port: 2525, From: "quiz@example.com"})
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotTo, gotMsg = addr, a, to, string(msg)
		return nil
	}

	err := m.Send(context.Background(), Message{To: "ala@example.com", Subject: "Hi\r\nBcc: x", HTML: "<p>ok</p>"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAddr != "mail.local:2525" {
		t.Errorf("addr = %q", gotAddr)
	}
	if gotAuth != nil {
		t.Error("auth set without username")
	}
	if len(gotTo) != 1 || gotTo[0] != "ala@example.com" {
		t.Errorf("to = %v", gotTo)
	}
	if strings.Contains(gotMsg, "\r\nBcc:") {
		t.Error("subject injected a header")
	}
	if !strings.Contains(gotMsg, "Content-Type: text/html") || !strings.HasSuffix(gotMsg, "<p>ok</p>") {
		t.Errorf("unexpected message:\n%s", gotMsg)
	}
}

func TestNewMailer_FallsBackToLog(t *testing.T) {
	if _, ok := NewMailer(config.SMTPConfig{}, zerolog.Nop()).(*LogMailer); !ok {
		t.Error("empty host should select LogMailer")
	}
	if _, ok := NewMailer(config.SMTPConfig{Host: "mail.local"}, zerolog.Nop()).(*SMTPMailer); !ok {
		t.Error("host should select SMTPMailer")
	}
}
