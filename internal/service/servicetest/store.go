// Package servicetest provides in-memory implementations of the service
// store interfaces for tests.
package servicetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/quizcheck-backend/internal/model"
)

// Store is an in-memory stand-in for the pgx repositories. It keeps the
// same uniqueness and locking rules as the SQL schema.
type Store struct {
	mu        sync.Mutex
	users     map[int]*model.User
	tests     map[uuid.UUID]*model.Test
	questions map[uuid.UUID]*model.Question
	answers   map[uuid.UUID]*model.Answer
	grades    map[uuid.UUID]*model.Grade
	sessions  map[int]string
	queued    []model.ResultJob
	nextUser  int
	nextSeq   int64

	// FailUpdatePoints, when set, is returned by Answers.UpdatePoints.
	FailUpdatePoints error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:     map[int]*model.User{},
		tests:     map[uuid.UUID]*model.Test{},
		questions: map[uuid.UUID]*model.Question{},
		answers:   map[uuid.UUID]*model.Answer{},
		grades:    map[uuid.UUID]*model.Grade{},
		sessions:  map[int]string{},
	}
}

func notFound(what string) error { return fmt.Errorf("%w: %s", model.ErrNotFound, what) }

// ─── Users ─────────────────────────────────────────────────────────────

// Users implements the service store over Store.
type Users struct{ *Store }

func (m Users) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.users {
		if other.Username == u.Username {
			return fmt.Errorf("%w: username %s", model.ErrConflict, u.Username)
		}
	}
	m.nextUser++
	u.ID = m.nextUser
	u.CreatedAt = time.Now()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m Users) GetByID(_ context.Context, id int) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, notFound("user")
	}
	cp := *u
	return &cp, nil
}

func (m Users) GetByUsername(_ context.Context, username string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, notFound("user")
}

func (m Users) SetAdmin(_ context.Context, id int, isAdmin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return notFound("user")
	}
	u.IsAdmin = isAdmin
	return nil
}

// ─── Sessions ──────────────────────────────────────────────────────────

// Sessions implements the service store over Store.
type Sessions struct{ *Store }

func (m Sessions) Save(_ context.Context, userID int, jti string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = jti
	return nil
}

func (m Sessions) Active(_ context.Context, userID int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[userID], nil
}

func (m Sessions) Revoke(_ context.Context, userID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

// ─── Tests ─────────────────────────────────────────────────────────────

// Tests implements the service store over Store.
type Tests struct{ *Store }

func (m Tests) Create(_ context.Context, t *model.Test) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	t.UsersApproved = []int{}
	cp := *t
	m.tests[t.ID] = &cp
	return nil
}

func (m Tests) GetByID(_ context.Context, id uuid.UUID) (*model.Test, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tests[id]
	if !ok {
		return nil, notFound("test")
	}
	cp := *t
	cp.QuestionCount = 0
	for _, q := range m.questions {
		if q.TestID == id {
			cp.QuestionCount++
		}
	}
	cp.UsersApproved = []int{}
	for _, g := range m.sortedGrades(id) {
		cp.UsersApproved = append(cp.UsersApproved, g.UserID)
	}
	return &cp, nil
}

func (m Tests) List(_ context.Context, ownerID *int, limit, offset int) ([]model.Test, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.Test
	for _, t := range m.tests {
		if ownerID == nil || t.OwnedBy(*ownerID) {
			all = append(all, *t)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m Tests) Update(_ context.Context, t *model.Test) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tests[t.ID]
	if !ok {
		return notFound("test")
	}
	stored.Name = t.Name
	stored.Description = t.Description
	return nil
}

func (m Tests) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tests[id]; !ok {
		return notFound("test")
	}
	for qid, q := range m.questions {
		if q.TestID == id {
			m.purgeQuestion(qid)
		}
	}
	for gid, g := range m.grades {
		if g.TestID == id {
			delete(m.grades, gid)
		}
	}
	delete(m.tests, id)
	return nil
}

// ─── Questions ─────────────────────────────────────────────────────────

// Questions implements the service store over Store.
type Questions struct{ *Store }

func (m Questions) Create(_ context.Context, q *model.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.questions {
		if other.TestID == q.TestID && other.Number == q.Number {
			return fmt.Errorf("%w: question number %d", model.ErrConflict, q.Number)
		}
	}
	q.ID = uuid.New()
	for i := range q.Options {
		q.Options[i].QuestionID = q.ID
	}
	m.questions[q.ID] = cloneQuestion(q)
	return nil
}

func (m Questions) GetByID(_ context.Context, id uuid.UUID) (*model.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return nil, notFound("question")
	}
	return cloneQuestion(q), nil
}

func (m Questions) GetByNumber(_ context.Context, testID uuid.UUID, number int) (*model.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.questions {
		if q.TestID == testID && q.Number == number {
			return cloneQuestion(q), nil
		}
	}
	return nil, notFound("question")
}

func (m Questions) ListByTest(_ context.Context, testID uuid.UUID) ([]model.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Question
	for _, q := range m.questions {
		if q.TestID == testID {
			out = append(out, *cloneQuestion(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m Questions) Update(_ context.Context, q *model.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[q.ID]; !ok {
		return notFound("question")
	}
	for _, other := range m.questions {
		if other.ID != q.ID && other.TestID == q.TestID && other.Number == q.Number {
			return fmt.Errorf("%w: question number %d", model.ErrConflict, q.Number)
		}
	}
	m.questions[q.ID] = cloneQuestion(q)
	return nil
}

func (m Questions) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[id]; !ok {
		return notFound("question")
	}
	m.purgeQuestion(id)
	return nil
}

// purgeQuestion must be called with mu held.
func (m *Store) purgeQuestion(id uuid.UUID) {
	for aid, a := range m.answers {
		if a.QuestionID == id {
			delete(m.answers, aid)
		}
	}
	delete(m.questions, id)
}

func cloneQuestion(q *model.Question) *model.Question {
	cp := *q
	cp.Options = append([]model.Choice(nil), q.Options...)
	cp.Proper.Choices = append([]uuid.UUID(nil), q.Proper.Choices...)
	return &cp
}

// ─── Answers ───────────────────────────────────────────────────────────

// Answers implements the service store over Store.
type Answers struct{ *Store }

// locked must be called with mu held.
func (m *Store) locked(userID int, questionID uuid.UUID) bool {
	q, ok := m.questions[questionID]
	if !ok {
		return false
	}
	for _, g := range m.grades {
		if g.UserID == userID && g.TestID == q.TestID {
			return true
		}
	}
	return false
}

func (m Answers) Upsert(_ context.Context, a *model.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked(a.UserID, a.QuestionID) {
		return model.ErrAnswersLocked
	}
	now := time.Now()
	for _, existing := range m.answers {
		if existing.UserID == a.UserID && existing.QuestionID == a.QuestionID {
			a.ID = existing.ID
			a.CreatedAt = existing.CreatedAt
			a.UpdatedAt = now
			a.Points = 0
			cp := *a
			m.answers[a.ID] = &cp
			return nil
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = now
	a.UpdatedAt = now
	a.Points = 0
	cp := *a
	m.answers[a.ID] = &cp
	return nil
}

func (m Answers) Get(_ context.Context, userID int, questionID uuid.UUID) (*model.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.answers {
		if a.UserID == userID && a.QuestionID == questionID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, notFound("answer")
}

func (m Answers) Delete(_ context.Context, userID int, questionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked(userID, questionID) {
		return model.ErrAnswersLocked
	}
	for id, a := range m.answers {
		if a.UserID == userID && a.QuestionID == questionID {
			delete(m.answers, id)
			return nil
		}
	}
	return notFound("answer")
}

func (m Answers) ListByTest(_ context.Context, testID uuid.UUID, userID *int) ([]model.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Answer
	for _, a := range m.answers {
		q, ok := m.questions[a.QuestionID]
		if !ok || q.TestID != testID {
			continue
		}
		if userID != nil && a.UserID != *userID {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return m.questions[out[i].QuestionID].Number < m.questions[out[j].QuestionID].Number
	})
	return out, nil
}

func (m Answers) UpdatePoints(_ context.Context, id uuid.UUID, points float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUpdatePoints != nil {
		return m.FailUpdatePoints
	}
	a, ok := m.answers[id]
	if !ok {
		return notFound("answer")
	}
	a.Points = points
	return nil
}

// ─── Grades ────────────────────────────────────────────────────────────

// Grades implements the service store over Store.
type Grades struct{ *Store }

func (m Grades) Create(_ context.Context, g *model.Grade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.grades {
		if other.UserID == g.UserID && other.TestID == g.TestID {
			return model.ErrAlreadyApproved
		}
	}
	m.nextSeq++
	g.ID = uuid.New()
	g.Seq = m.nextSeq
	g.CreatedAt = time.Now()
	cp := *g
	m.grades[g.ID] = &cp
	return nil
}

func (m Grades) Get(_ context.Context, userID int, testID uuid.UUID) (*model.Grade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.grades {
		if g.UserID == userID && g.TestID == testID {
			cp := *g
			return &cp, nil
		}
	}
	return nil, notFound("grade")
}

func (m Grades) ListByTest(_ context.Context, testID uuid.UUID) ([]model.Grade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedGrades(testID), nil
}

// sortedGrades must be called with mu held.
func (m *Store) sortedGrades(testID uuid.UUID) []model.Grade {
	var out []model.Grade
	for _, g := range m.grades {
		if g.TestID == testID {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (m Grades) UpdateTotals(_ context.Context, g *model.Grade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.grades[g.ID]
	if !ok {
		return notFound("grade")
	}
	stored.Points = g.Points
	stored.Grade = g.Grade
	stored.CheckedAt = g.CheckedAt
	return nil
}

func (m Grades) Ranking(_ context.Context, testID uuid.UUID, limit int) ([]model.RankingEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	grades := m.sortedGrades(testID)
	sort.SliceStable(grades, func(i, j int) bool { return grades[i].Points > grades[j].Points })
	if len(grades) > limit {
		grades = grades[:limit]
	}
	out := make([]model.RankingEntry, 0, len(grades))
	for _, g := range grades {
		name := ""
		if u, ok := m.users[g.UserID]; ok {
			name = u.Username
		}
		out = append(out, model.RankingEntry{UserID: g.UserID, Username: name, Points: g.Points})
	}
	return out, nil
}

// ─── Queue / recorder ──────────────────────────────────────────────────

// Queue implements the service store over Store.
type Queue struct{ *Store }

func (m Queue) Push(_ context.Context, job model.ResultJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = append(m.queued, job)
	return nil
}

// Recorder counts metric events.
type Recorder struct {
	mu         sync.Mutex
	Scored     map[model.QuestionType]int
	Recomputed int
	Queued     int
}

// NewRecorder returns a zeroed Recorder.
func NewRecorder() *Recorder {
	return &Recorder{Scored: map[model.QuestionType]int{}}
}

func (r *Recorder) AnswerScored(t model.QuestionType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Scored[t]++
}

func (r *Recorder) GradeRecomputed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Recomputed++
}

func (r *Recorder) ResultQueued() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Queued++
}

// Queued returns the jobs pushed so far.
func (m *Store) Queued() []model.ResultJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ResultJob(nil), m.queued...)
}

// Users returns the user store view.
func (m *Store) Users() Users { return Users{m} }

// Sessions returns the session store view.
func (m *Store) Sessions() Sessions { return Sessions{m} }

// Tests returns the test store view.
func (m *Store) Tests() Tests { return Tests{m} }

// Questions returns the question store view.
func (m *Store) Questions() Questions { return Questions{m} }

// Answers returns the answer store view.
func (m *Store) Answers() Answers { return Answers{m} }

// Grades returns the grade store view.
func (m *Store) Grades() Grades { return Grades{m} }

// Queue returns the results queue view.
func (m *Store) Queue() Queue { return Queue{m} }
