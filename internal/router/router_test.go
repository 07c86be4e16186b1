package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizcheck-backend/internal/config"
	"github.com/stemsi/quizcheck-backend/internal/grading"
	"github.com/stemsi/quizcheck-backend/internal/handler"
	"github.com/stemsi/quizcheck-backend/internal/metrics"
	"github.com/stemsi/quizcheck-backend/internal/middleware"
	"github.com/stemsi/quizcheck-backend/internal/service"
	"github.com/stemsi/quizcheck-backend/internal/service/servicetest"
	"github.com/stemsi/quizcheck-backend/internal/validator"
	ws "github.com/stemsi/quizcheck-backend/internal/websocket"
	"golang.org/x/crypto/bcrypt"
)

var setupValidator sync.Once

// memBroker fans events out in process.
type memBroker struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[chan ws.GradeEvent]struct{}
}

func newMemBroker() *memBroker {
	return &memBroker{subs: map[uuid.UUID]map[chan ws.GradeEvent]struct{}{}}
}

func (b *memBroker) Publish(_ context.Context, testID uuid.UUID, ev ws.GradeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[testID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *memBroker) Subscribe(_ context.Context, testID uuid.UUID) (<-chan ws.GradeEvent, func()) {
	ch := make(chan ws.GradeEvent, 16)
	b.mu.Lock()
	if b.subs[testID] == nil {
		b.subs[testID] = map[chan ws.GradeEvent]struct{}{}
	}
	b.subs[testID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[testID], ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

type apiEnv struct {
	router *gin.Engine
	store  *servicetest.Store
	auth   *service.AuthService
}

func newAPI(t *testing.T) *apiEnv {
	t.Helper()
	setupValidator.Do(validator.Setup)

	cfg := &config.Config{
		GinMode:    gin.TestMode,
		JWTSecret:  "router-test",
		JWTExpiry:  time.Hour,
		BcryptCost: bcrypt.MinCost,
	}
	store := servicetest.NewStore()
	reg := grading.NewRegistry()
	m := metrics.New(prometheus.NewRegistry())

	auth := service.NewAuthService(cfg, store.Users(), store.Sessions())
	tests := service.NewTestService(store.Tests())
	questions := service.NewQuestionService(reg, store.Tests(), store.Questions())
	answers := service.NewAnswerService(reg, store.Tests(), store.Questions(), store.Answers(), store.Grades())
	scoring := service.NewScoringService(reg, store.Answers(), m)
	grades := service.NewGradeService(service.GradeServiceDeps{
		Registry:  reg,
		Tests:     store.Tests(),
		Questions: store.Questions(),
		Answers:   store.Answers(),
		Grades:    store.Grades(),
		Users:     store.Users(),
		Scoring:   scoring,
		Queue:     store.Queue(),
		Recorder:  m,
	}, zerolog.Nop())
	broker := newMemBroker()

	handlers := &Handlers{
		Auth:     handler.NewAuthHandler(auth),
		Test:     handler.NewTestHandler(tests),
		Question: handler.NewQuestionHandler(questions),
		Answer:   handler.NewAnswerHandler(answers),
		Grade:    handler.NewGradeHandler(grades, broker, zerolog.Nop()),
		WS: handler.NewWSHandler(handler.WSServices{
			Tests:     tests,
			Questions: questions,
			Answers:   answers,
			Grades:    grades,
		}, broker, zerolog.Nop(), nil),
		System: handler.NewSystemHandler([]handler.HealthCheck{
			{Name: "postgres", Check: func(context.Context) error { return nil }},
		}, nil, zerolog.Nop()),
	}

	r := SetupRouter(auth, handlers, cfg, Options{
		Metrics:     m,
		AuthLimiter: middleware.NewRateLimiter(1000, time.Minute),
	})
	return &apiEnv{router: r, store: store, auth: auth}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

func (e *apiEnv) mustDo(t *testing.T, method, path, token string, body any, want int, dst any) {
	t.Helper()
	code, env := e.do(t, method, path, token, body)
	if code != want {
		t.Fatalf("%s %s: status = %d, want %d (error %+v)", method, path, code, want, env.Error)
	}
	if dst != nil {
		if err := json.Unmarshal(env.Data, dst); err != nil {
			t.Fatalf("%s %s: decode data: %v", method, path, err)
		}
	}
}

func (e *apiEnv) signup(t *testing.T, username string) (token string, userID int) {
	t.Helper()
	creds := map[string]string{"username": username, "email": username + "@example.test", "password": "secret1"}
	e.mustDo(t, http.MethodPost, "/api/v1/auth/register", "", creds, http.StatusCreated, nil)

	var out struct {
		Token string `json:"token"`
		User  struct {
			ID int `json:"id"`
		} `json:"user"`
	}
	e.mustDo(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username, "password": "secret1",
	}, http.StatusOK, &out)
	return out.Token, out.User.ID
}

type questionOut struct {
	ID      string `json:"id"`
	Options []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"options"`
}

func (q questionOut) option(t *testing.T, name string) string {
	t.Helper()
	for _, o := range q.Options {
		if o.Name == name {
			return o.ID
		}
	}
	t.Fatalf("option %q missing", name)
	return ""
}

func TestAPI_AuthFlow(t *testing.T) {
	e := newAPI(t)
	token, id := e.signup(t, "alice")

	var me struct {
		User struct {
			ID       int    `json:"id"`
			Username string `json:"username"`
		} `json:"user"`
	}
	e.mustDo(t, http.MethodGet, "/api/v1/auth/me", token, nil, http.StatusOK, &me)
	if me.User.ID != id || me.User.Username != "alice" {
		t.Errorf("me = %+v", me.User)
	}

	code, env := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "alice", "password": "wrong"})
	if code != http.StatusUnauthorized || env.Error.Code != "INVALID_CREDENTIALS" {
		t.Errorf("wrong password: %d %+v", code, env.Error)
	}

	code, env = e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "alice", "email": "other@example.test", "password": "secret1",
	})
	if code != http.StatusConflict || env.Error.Code != "CONFLICT" {
		t.Errorf("duplicate username: %d %+v", code, env.Error)
	}

	e.mustDo(t, http.MethodPost, "/api/v1/auth/logout", token, nil, http.StatusOK, nil)
	code, env = e.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	if code != http.StatusUnauthorized || env.Error.Code != "SESSION_INVALIDATED" {
		t.Errorf("after logout: %d %+v", code, env.Error)
	}
}

func TestAPI_QuizLifecycle(t *testing.T) {
	e := newAPI(t)
	owner, _ := e.signup(t, "author")
	taker, takerID := e.signup(t, "taker")

	var created struct {
		Test struct {
			ID string `json:"id"`
		} `json:"test"`
	}
	e.mustDo(t, http.MethodPost, "/api/v1/tests", owner, map[string]string{"name": "Letters"}, http.StatusCreated, &created)
	base := "/api/v1/tests/" + created.Test.ID

	var multi struct {
		Question questionOut `json:"question"`
	}
	e.mustDo(t, http.MethodPost, base+"/questions", owner, map[string]any{
		"number": 1, "content": "Pick X and Y", "type": "CM",
		"options": []string{"X", "Y", "Z"}, "proper_answer": []string{"X", "Y"},
	}, http.StatusCreated, &multi)
	var boolean struct {
		Question questionOut `json:"question"`
	}
	e.mustDo(t, http.MethodPost, base+"/questions", owner, map[string]any{
		"number": 2, "content": "Is A a vowel?", "type": "BO", "proper_answer": true,
	}, http.StatusCreated, &boolean)

	code, env := e.do(t, http.MethodPost, base+"/questions", taker, map[string]any{
		"number": 3, "content": "mine", "type": "BO", "proper_answer": true,
	})
	if code != http.StatusForbidden || env.Error.Code != "FORBIDDEN" {
		t.Fatalf("taker adds question: %d %+v", code, env.Error)
	}

	_, env = e.do(t, http.MethodGet, base+"/questions", taker, nil)
	if strings.Contains(string(env.Data), "proper_answer") {
		t.Errorf("taker sees proper answers: %s", env.Data)
	}
	_, env = e.do(t, http.MethodGet, base+"/questions", owner, nil)
	if !strings.Contains(string(env.Data), "proper_answer") {
		t.Errorf("owner lacks proper answers: %s", env.Data)
	}

	q1 := multi.Question
	e.mustDo(t, http.MethodPut, "/api/v1/questions/"+q1.ID+"/answer", taker, map[string]any{
		"answer": []string{q1.option(t, "X"), q1.option(t, "Z")},
	}, http.StatusOK, nil)
	e.mustDo(t, http.MethodPut, "/api/v1/questions/"+boolean.Question.ID+"/answer", taker, map[string]any{
		"answer": true,
	}, http.StatusOK, nil)

	code, env = e.do(t, http.MethodPut, "/api/v1/questions/"+boolean.Question.ID+"/answer", taker, map[string]any{"answer": 4})
	if code != http.StatusBadRequest || env.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("wrong answer shape: %d %+v", code, env.Error)
	}

	var mine struct {
		Answers []json.RawMessage `json:"answers"`
	}
	e.mustDo(t, http.MethodGet, base+"/my-answers", taker, nil, http.StatusOK, &mine)
	if len(mine.Answers) != 2 {
		t.Errorf("my answers = %d, want 2", len(mine.Answers))
	}

	e.mustDo(t, http.MethodPost, base+"/approve", taker, nil, http.StatusCreated, nil)
	code, env = e.do(t, http.MethodPost, base+"/approve", taker, nil)
	if code != http.StatusConflict || env.Error.Code != "ALREADY_APPROVED" {
		t.Errorf("second approve: %d %+v", code, env.Error)
	}
	code, env = e.do(t, http.MethodPut, "/api/v1/questions/"+boolean.Question.ID+"/answer", taker, map[string]any{"answer": false})
	if code != http.StatusConflict || env.Error.Code != "ANSWERS_LOCKED" {
		t.Errorf("answer after approve: %d %+v", code, env.Error)
	}

	code, _ = e.do(t, http.MethodPost, base+"/check", taker, nil)
	if code != http.StatusForbidden {
		t.Errorf("taker check: status = %d, want 403", code)
	}

	var checked struct {
		AnswersScored int `json:"answers_scored"`
		Grades        []struct {
			UserID int     `json:"user_id"`
			Points float64 `json:"points"`
			Grade  float64 `json:"grade"`
		} `json:"grades"`
	}
	e.mustDo(t, http.MethodPost, base+"/check", owner, nil, http.StatusOK, &checked)
	if checked.AnswersScored != 2 || len(checked.Grades) != 1 {
		t.Fatalf("check = %+v", checked)
	}
	if g := checked.Grades[0]; g.UserID != takerID || g.Points != 1.25 || g.Grade != 0.625 {
		t.Errorf("grade = %+v, want points 1.25 grade 0.625", g)
	}

	var status struct {
		State string `json:"state"`
	}
	e.mustDo(t, http.MethodGet, base+"/grade", taker, nil, http.StatusOK, &status)
	if status.State != "CHECKED" {
		t.Errorf("state = %q", status.State)
	}

	var ranking struct {
		Ranking []struct {
			Username string  `json:"username"`
			Points   float64 `json:"points"`
		} `json:"ranking"`
	}
	e.mustDo(t, http.MethodGet, base+"/ranking?limit=5", taker, nil, http.StatusOK, &ranking)
	if len(ranking.Ranking) != 1 || ranking.Ranking[0].Username != "taker" {
		t.Errorf("ranking = %+v", ranking.Ranking)
	}

	var perQuestion struct {
		Answers []json.RawMessage `json:"answers"`
	}
	e.mustDo(t, http.MethodGet, base+"/answers/1", owner, nil, http.StatusOK, &perQuestion)
	if len(perQuestion.Answers) != 1 {
		t.Errorf("answers to question 1 = %d", len(perQuestion.Answers))
	}

	e.mustDo(t, http.MethodPost, base+"/send-email", owner, map[string]int{"user_id": takerID}, http.StatusAccepted, nil)
	if q := e.store.Queued(); len(q) != 1 || q[0].UserID != takerID {
		t.Errorf("queued = %+v", q)
	}
}

func TestAPI_RequestErrors(t *testing.T) {
	e := newAPI(t)
	token, _ := e.signup(t, "author")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
		code   string
	}{
		{name: "no token", method: http.MethodGet, path: "/api/v1/tests", want: http.StatusUnauthorized, code: "TOKEN_REQUIRED"},
		{name: "bad token", method: http.MethodGet, path: "/api/v1/tests", token: "nope", want: http.StatusUnauthorized, code: "TOKEN_INVALID"},
		{name: "malformed id", method: http.MethodGet, path: "/api/v1/tests/not-a-uuid", token: token, want: http.StatusBadRequest, code: "INVALID_ID"},
		{name: "unknown test", method: http.MethodGet, path: "/api/v1/tests/" + uuid.NewString(), token: token, want: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "missing name", method: http.MethodPost, path: "/api/v1/tests", token: token, body: map[string]string{}, want: http.StatusBadRequest, code: "VALIDATION_ERROR"},
		{name: "bad question number", method: http.MethodGet, path: "/api/v1/tests/" + uuid.NewString() + "/questions/zero", token: token, want: http.StatusBadRequest, code: "INVALID_ID"},
		{name: "admin only", method: http.MethodPut, path: "/api/v1/admin/users/1/admin", token: token, body: map[string]bool{"is_admin": true}, want: http.StatusForbidden, code: "ADMIN_ACCESS_ONLY"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, env := e.do(t, tc.method, tc.path, tc.token, tc.body)
			if code != tc.want {
				t.Fatalf("status = %d, want %d", code, tc.want)
			}
			if env.Error == nil || env.Error.Code != tc.code {
				t.Errorf("error = %+v, want %s", env.Error, tc.code)
			}
		})
	}
}

func TestAPI_ChoiceValidationField(t *testing.T) {
	e := newAPI(t)
	token, _ := e.signup(t, "author")
	var created struct {
		Test struct {
			ID string `json:"id"`
		} `json:"test"`
	}
	e.mustDo(t, http.MethodPost, "/api/v1/tests", token, map[string]string{"name": "T"}, http.StatusCreated, &created)

	code, env := e.do(t, http.MethodPost, "/api/v1/tests/"+created.Test.ID+"/questions", token, map[string]any{
		"number": 1, "content": "c", "type": "CM", "options": []string{"X", "Y"}, "proper_answer": []string{"X", "Q"},
	})
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d", code)
	}
	if !strings.Contains(env.Error.Fields["detail"], "must be included in options") {
		t.Errorf("detail = %q", env.Error.Fields["detail"])
	}

	var list struct {
		Questions []json.RawMessage `json:"questions"`
	}
	e.mustDo(t, http.MethodGet, "/api/v1/tests/"+created.Test.ID+"/questions", token, nil, http.StatusOK, &list)
	if len(list.Questions) != 0 {
		t.Errorf("rejected question persisted")
	}
}

func TestAPI_AdminPromotes(t *testing.T) {
	e := newAPI(t)
	_, userID := e.signup(t, "someone")

	admin, err := e.auth.CreateAdmin(context.Background(), "root", "root@example.test", "secret1")
	if err != nil {
		t.Fatal(err)
	}
	adminToken, err := e.auth.GenerateToken(context.Background(), admin)
	if err != nil {
		t.Fatal(err)
	}

	var out struct {
		User struct {
			IsAdmin bool `json:"is_admin"`
		} `json:"user"`
	}
	path := "/api/v1/admin/users/" + strconv.Itoa(userID) + "/admin"
	e.mustDo(t, http.MethodPut, path, adminToken, map[string]bool{"is_admin": true}, http.StatusOK, &out)
	if !out.User.IsAdmin {
		t.Error("user not promoted")
	}
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	e := newAPI(t)
	e.mustDo(t, http.MethodGet, "/health", "", nil, http.StatusOK, nil)

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `quizcheck_http_requests_total{endpoint="/health"`) {
		t.Errorf("health request not counted:\n%s", w.Body.String())
	}
}
