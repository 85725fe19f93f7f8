package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/examforge/exam-session-service/internal/models"
	"github.com/examforge/exam-session-service/internal/repositories"
)

// fakeClock is a settable time source for expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mockRepository is an in-memory Repository that reproduces the store-level
// guarantees the services lean on: the conditional status update, atomic
// counters, the answer unique index, and single-use invitation consumption.
type mockRepository struct {
	mu sync.Mutex

	exams       map[uint]*models.Exam
	questionIDs map[uint][]uint // examID -> ordered question ids
	questions   map[uint]*models.Question
	sessions    map[uint]*models.ExamSession
	answers     map[string]*models.ExamAnswer // "sessionID/questionID"
	violations  map[uint][]*models.ExamViolation
	invitations map[uint]*models.ExamInvitation
	users       map[string]*models.User

	nextSessionID uint
	nextAnswerID  uint
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		exams:         make(map[uint]*models.Exam),
		questionIDs:   make(map[uint][]uint),
		questions:     make(map[uint]*models.Question),
		sessions:      make(map[uint]*models.ExamSession),
		answers:       make(map[string]*models.ExamAnswer),
		violations:    make(map[uint][]*models.ExamViolation),
		invitations:   make(map[uint]*models.ExamInvitation),
		users:         make(map[string]*models.User),
		nextSessionID: 1,
		nextAnswerID:  1,
	}
}

func (m *mockRepository) Exam() repositories.ExamRepository             { return &mockExamRepo{m} }
func (m *mockRepository) Question() repositories.QuestionRepository     { return &mockQuestionRepo{m} }
func (m *mockRepository) Session() repositories.SessionRepository       { return &mockSessionRepo{m} }
func (m *mockRepository) Answer() repositories.AnswerRepository         { return &mockAnswerRepo{m} }
func (m *mockRepository) Violation() repositories.ViolationRepository   { return &mockViolationRepo{m} }
func (m *mockRepository) Invitation() repositories.InvitationRepository { return &mockInvitationRepo{m} }
func (m *mockRepository) User() repositories.UserRepository             { return &mockUserRepo{m} }

func (m *mockRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(m)
}

func (m *mockRepository) Ping(ctx context.Context) error { return nil }
func (m *mockRepository) Close() error                   { return nil }

func answerKey(sessionID, questionID uint) string {
	return fmt.Sprintf("%d/%d", sessionID, questionID)
}

func copySession(s *models.ExamSession) *models.ExamSession {
	out := *s
	return &out
}

// ===== EXAM =====

type mockExamRepo struct{ m *mockRepository }

func (r *mockExamRepo) Create(ctx context.Context, tx *gorm.DB, exam *models.Exam) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if exam.ID == 0 {
		exam.ID = uint(len(r.m.exams) + 1)
	}
	r.m.exams[exam.ID] = exam
	return nil
}

func (r *mockExamRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	exam, ok := r.m.exams[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return exam, nil
}

func (r *mockExamRepo) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *mockExamRepo) Update(ctx context.Context, tx *gorm.DB, exam *models.Exam) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.exams[exam.ID] = exam
	return nil
}

func (r *mockExamRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.exams, id)
	return nil
}

func (r *mockExamRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.ExamFilters) ([]*models.Exam, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Exam
	for _, exam := range r.m.exams {
		if filters.Status != nil && exam.Status != *filters.Status {
			continue
		}
		out = append(out, exam)
	}
	return out, int64(len(out)), nil
}

func (r *mockExamRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.ExamStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	exam, ok := r.m.exams[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	exam.Status = status
	return nil
}

func (r *mockExamRepo) AddQuestion(ctx context.Context, tx *gorm.DB, link *models.ExamQuestion) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, qid := range r.m.questionIDs[link.ExamID] {
		if qid == link.QuestionID {
			return gorm.ErrDuplicatedKey
		}
	}
	r.m.questionIDs[link.ExamID] = append(r.m.questionIDs[link.ExamID], link.QuestionID)
	return nil
}

func (r *mockExamRepo) RemoveQuestion(ctx context.Context, tx *gorm.DB, examID, questionID uint) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	ids := r.m.questionIDs[examID]
	for i, qid := range ids {
		if qid == questionID {
			r.m.questionIDs[examID] = append(ids[:i], ids[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *mockExamRepo) GetQuestionIDs(ctx context.Context, tx *gorm.DB, examID uint) ([]uint, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	ids := r.m.questionIDs[examID]
	out := make([]uint, len(ids))
	copy(out, ids)
	return out, nil
}

func (r *mockExamRepo) CountQuestions(ctx context.Context, tx *gorm.DB, examID uint) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return int64(len(r.m.questionIDs[examID])), nil
}

func (r *mockExamRepo) GetStats(ctx context.Context, tx *gorm.DB, examID uint) (*repositories.ExamStats, error) {
	return &repositories.ExamStats{}, nil
}

// ===== QUESTION =====

type mockQuestionRepo struct{ m *mockRepository }

func (r *mockQuestionRepo) Create(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if question.ID == 0 {
		question.ID = uint(len(r.m.questions) + 1)
	}
	r.m.questions[question.ID] = question
	return nil
}

func (r *mockQuestionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	question, ok := r.m.questions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return question, nil
}

func (r *mockQuestionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Question
	for _, id := range ids {
		if q, ok := r.m.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (r *mockQuestionRepo) Update(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.questions[question.ID] = question
	return nil
}

func (r *mockQuestionRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.questions, id)
	return nil
}

func (r *mockQuestionRepo) GetByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.Question, error) {
	ids, _ := (&mockExamRepo{r.m}).GetQuestionIDs(ctx, tx, examID)
	return r.GetByIDs(ctx, tx, ids)
}

// ===== SESSION =====

type mockSessionRepo struct{ m *mockRepository }

func (r *mockSessionRepo) Create(ctx context.Context, tx *gorm.DB, session *models.ExamSession) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if session.ID == 0 {
		session.ID = r.m.nextSessionID
		r.m.nextSessionID++
	}
	r.m.sessions[session.ID] = copySession(session)
	return nil
}

func (r *mockSessionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamSession, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	session, ok := r.m.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return copySession(session), nil
}

func (r *mockSessionRepo) GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamSession, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *mockSessionRepo) Update(ctx context.Context, tx *gorm.DB, session *models.ExamSession) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.sessions[session.ID] = copySession(session)
	return nil
}

func (r *mockSessionRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.SessionFilters) ([]*models.ExamSession, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.ExamSession
	for _, session := range r.m.sessions {
		if filters.UserID != nil && session.UserID != *filters.UserID {
			continue
		}
		if filters.Status != nil && session.Status != *filters.Status {
			continue
		}
		out = append(out, copySession(session))
	}
	return out, int64(len(out)), nil
}

func (r *mockSessionRepo) UpdateStatusIf(ctx context.Context, tx *gorm.DB, id uint, expected models.SessionStatus, updates map[string]interface{}) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	session, ok := r.m.sessions[id]
	if !ok || session.Status != expected {
		return false, nil
	}
	if v, ok := updates["status"].(models.SessionStatus); ok {
		session.Status = v
	}
	if v, ok := updates["completed_at"].(time.Time); ok {
		session.CompletedAt = &v
	}
	if v, ok := updates["end_reason"].(string); ok {
		session.EndReason = &v
	}
	if v, ok := updates["score"].(float64); ok {
		session.Score = &v
	}
	return true, nil
}

func (r *mockSessionRepo) IncrementAnsweredCount(ctx context.Context, tx *gorm.DB, id uint) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	session, ok := r.m.sessions[id]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	session.AnsweredCount++
	return session.AnsweredCount, nil
}

func (r *mockSessionRepo) IncrementViolationCount(ctx context.Context, tx *gorm.DB, id uint) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	session, ok := r.m.sessions[id]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	session.ViolationCount++
	return session.ViolationCount, nil
}

func (r *mockSessionRepo) CountActiveByUser(ctx context.Context, tx *gorm.DB, userID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for _, session := range r.m.sessions {
		if session.UserID == userID && session.Status == models.SessionActive {
			n++
		}
	}
	return n, nil
}

func (r *mockSessionRepo) GetActiveByUserAndExam(ctx context.Context, tx *gorm.DB, userID string, examID uint) (*models.ExamSession, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, session := range r.m.sessions {
		if session.UserID == userID && session.ExamID == examID && session.Status == models.SessionActive {
			return copySession(session), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockSessionRepo) GetExpiredActive(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.ExamSession, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.ExamSession
	for _, session := range r.m.sessions {
		if session.Status != models.SessionActive || session.TimeLimit == nil {
			continue
		}
		deadline := session.StartedAt.Add(time.Duration(*session.TimeLimit) * time.Minute)
		if !now.Before(deadline) {
			out = append(out, copySession(session))
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ===== ANSWER =====

type mockAnswerRepo struct{ m *mockRepository }

func (r *mockAnswerRepo) Create(ctx context.Context, tx *gorm.DB, answer *models.ExamAnswer) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	key := answerKey(answer.SessionID, answer.QuestionID)
	if _, exists := r.m.answers[key]; exists {
		return gorm.ErrDuplicatedKey
	}
	answer.ID = r.m.nextAnswerID
	r.m.nextAnswerID++
	r.m.answers[key] = answer
	return nil
}

func (r *mockAnswerRepo) GetBySession(ctx context.Context, tx *gorm.DB, sessionID uint) ([]*models.ExamAnswer, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.ExamAnswer
	for _, a := range r.m.answers {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *mockAnswerRepo) GetBySessionAndQuestion(ctx context.Context, tx *gorm.DB, sessionID, questionID uint) (*models.ExamAnswer, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if a, ok := r.m.answers[answerKey(sessionID, questionID)]; ok {
		return a, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockAnswerRepo) CountBySession(ctx context.Context, tx *gorm.DB, sessionID uint) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for _, a := range r.m.answers {
		if a.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

func (r *mockAnswerRepo) CountCorrectBySession(ctx context.Context, tx *gorm.DB, sessionID uint) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for _, a := range r.m.answers {
		if a.SessionID == sessionID && a.IsCorrect != nil && *a.IsCorrect {
			n++
		}
	}
	return n, nil
}

// ===== VIOLATION =====

type mockViolationRepo struct{ m *mockRepository }

func (r *mockViolationRepo) Create(ctx context.Context, tx *gorm.DB, violation *models.ExamViolation) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	violation.ID = uint(len(r.m.violations[violation.SessionID]) + 1)
	r.m.violations[violation.SessionID] = append(r.m.violations[violation.SessionID], violation)
	return nil
}

func (r *mockViolationRepo) GetBySession(ctx context.Context, tx *gorm.DB, sessionID uint) ([]*models.ExamViolation, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.violations[sessionID], nil
}

func (r *mockViolationRepo) CountBySession(ctx context.Context, tx *gorm.DB, sessionID uint) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return int64(len(r.m.violations[sessionID])), nil
}

// ===== INVITATION =====

type mockInvitationRepo struct{ m *mockRepository }

func (r *mockInvitationRepo) Create(ctx context.Context, tx *gorm.DB, invitation *models.ExamInvitation) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if invitation.ID == 0 {
		invitation.ID = uint(len(r.m.invitations) + 1)
	}
	r.m.invitations[invitation.ID] = invitation
	return nil
}

func (r *mockInvitationRepo) CreateBatch(ctx context.Context, tx *gorm.DB, invitations []*models.ExamInvitation) error {
	for _, inv := range invitations {
		if err := r.Create(ctx, tx, inv); err != nil {
			return err
		}
	}
	return nil
}

func (r *mockInvitationRepo) GetByToken(ctx context.Context, tx *gorm.DB, token string) (*models.ExamInvitation, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, inv := range r.m.invitations {
		if inv.Token == token {
			return inv, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockInvitationRepo) ListByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.ExamInvitation, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.ExamInvitation
	for _, inv := range r.m.invitations {
		if inv.ExamID == examID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *mockInvitationRepo) ConsumeIfUnused(ctx context.Context, tx *gorm.DB, id uint, usedAt time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	inv, ok := r.m.invitations[id]
	if !ok || inv.UsedAt != nil {
		return false, nil
	}
	inv.UsedAt = &usedAt
	return true, nil
}

// ===== USER =====

type mockUserRepo struct{ m *mockRepository }

func (r *mockUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	user, ok := r.m.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (r *mockUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, user := range r.m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockUserRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	var out []*models.User
	for _, id := range ids {
		if u, err := r.GetByID(ctx, id); err == nil {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *mockUserRepo) ExistsByID(ctx context.Context, id string) (bool, error) {
	_, err := r.GetByID(ctx, id)
	return err == nil, nil
}

func (r *mockUserRepo) HasRole(ctx context.Context, id string, role models.UserRole) (bool, error) {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return user.Role == role, nil
}

func (r *mockUserRepo) IsBanned(ctx context.Context, id string) (bool, error) {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return user.IsBanned, nil
}
