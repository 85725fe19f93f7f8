package services

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/examforge/exam-session-service/internal/models"
	"github.com/examforge/exam-session-service/internal/repositories"
)

// getOwnedSession loads a session and enforces ownership. Not-found and
// foreign sessions both map to ErrSessionAccessDenied so session ids cannot
// be probed. When allowPrivileged is set, teachers and admins may read
// sessions they do not own.
func (s *sessionService) getOwnedSession(ctx context.Context, sessionID uint, userID string, allowPrivileged bool) (*models.ExamSession, error) {
	session, err := s.repo.Session().GetByID(ctx, nil, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionAccessDenied
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if session.UserID == userID {
		return session, nil
	}

	if allowPrivileged {
		user, err := s.repo.User().GetByID(ctx, userID)
		if err == nil && user.IsPrivileged() {
			return session, nil
		}
	}

	return nil, ErrSessionAccessDenied
}

func (s *sessionService) syncIntervalSeconds() int {
	return int(s.cfg.SyncInterval / time.Second)
}

func (s *sessionService) buildSessionResponse(session *models.ExamSession) *SessionResponse {
	return &SessionResponse{
		ExamSession:         session,
		RemainingSeconds:    RemainingSeconds(session, s.clock.Now()),
		SyncIntervalSeconds: s.syncIntervalSeconds(),
	}
}

func (s *sessionService) buildStatusResponse(session *models.ExamSession) *StatusResponse {
	resp := &StatusResponse{
		SessionID:           session.ID,
		Status:              session.Status,
		EndReason:           session.EndReason,
		AnsweredCount:       session.AnsweredCount,
		QuestionCount:       session.QuestionCount,
		ViolationCount:      session.ViolationCount,
		SyncIntervalSeconds: s.syncIntervalSeconds(),
	}
	switch session.Status {
	case models.SessionActive:
		resp.RemainingSeconds = RemainingSeconds(session, s.clock.Now())
	case models.SessionExpired:
		// An expired session ran out of time, and the response says so.
		zero := 0
		resp.RemainingSeconds = &zero
	}
	return resp
}

// buildQuestionForSession produces the sanitized in-session view: correctness
// flags and explanations are stripped, and option order is derived
// deterministically from the session and question ids so re-fetching the same
// question always yields the same presentation.
func (s *sessionService) buildQuestionForSession(session *models.ExamSession, question *models.Question, index, total int) *QuestionForSession {
	options := make([]OptionForSession, len(question.Options))
	for i, opt := range question.Options {
		options[i] = OptionForSession{ID: opt.ID, Text: opt.Text}
	}

	if session.ShuffleOptions && len(options) > 1 {
		seed := int64(session.ID)<<32 | int64(question.ID)
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(options), func(i, j int) {
			options[i], options[j] = options[j], options[i]
		})
	}

	return &QuestionForSession{
		Index:      index,
		Total:      total,
		QuestionID: question.ID,
		Type:       question.Type,
		Text:       question.Text,
		ImageURL:   question.ImageURL,
		Points:     question.Points,
		TimeLimit:  question.TimeLimit,
		Options:    options,
		IsFirst:    index == 0,
		IsLast:     index == total-1,
	}
}

// buildResultsResponse assembles the graded view of a finalized session. The
// per-question breakdown is included for practice sessions and for privileged
// viewers; everyone else gets the aggregate only.
func (s *sessionService) buildResultsResponse(ctx context.Context, session *models.ExamSession, viewerID string) (*ResultsResponse, error) {
	correct, err := s.repo.Answer().CountCorrectBySession(ctx, nil, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count correct answers: %w", err)
	}

	resp := &ResultsResponse{
		SessionID:      session.ID,
		ExamID:         session.ExamID,
		Status:         session.Status,
		EndReason:      session.EndReason,
		Score:          session.Score,
		CorrectCount:   int(correct),
		AnsweredCount:  session.AnsweredCount,
		QuestionCount:  session.QuestionCount,
		ViolationCount: session.ViolationCount,
		StartedAt:      session.StartedAt,
		CompletedAt:    session.CompletedAt,
	}

	includeBreakdown := session.Category == models.CategoryPractice
	if !includeBreakdown && viewerID != session.UserID {
		user, err := s.repo.User().GetByID(ctx, viewerID)
		if err == nil && user.IsPrivileged() {
			includeBreakdown = true
		}
	}
	if !includeBreakdown {
		return resp, nil
	}

	breakdown, err := s.buildBreakdown(ctx, session)
	if err != nil {
		return nil, err
	}
	resp.Breakdown = breakdown
	return resp, nil
}

func (s *sessionService) buildBreakdown(ctx context.Context, session *models.ExamSession) ([]AnswerResult, error) {
	order, err := session.PinnedOrder()
	if err != nil {
		return nil, fmt.Errorf("failed to decode question order: %w", err)
	}

	questions, err := s.repo.Question().GetByIDs(ctx, nil, order)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	byID := make(map[uint]*models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	answers, err := s.repo.Answer().GetBySession(ctx, nil, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get answers: %w", err)
	}
	answerByQuestion := make(map[uint]*models.ExamAnswer, len(answers))
	for _, a := range answers {
		answerByQuestion[a.QuestionID] = a
	}

	breakdown := make([]AnswerResult, 0, len(order))
	for _, qid := range order {
		question, ok := byID[qid]
		if !ok {
			continue // question deleted after the session was pinned
		}

		result := AnswerResult{
			QuestionID:  question.ID,
			Type:        question.Type,
			Text:        question.Text,
			Points:      question.Points,
			Explanation: question.Explanation,
		}
		if correct := question.CorrectOption(); correct != nil {
			result.CorrectOptionID = &correct.ID
		}
		if answer, answered := answerByQuestion[qid]; answered {
			result.SelectedOptionID = answer.SelectedOptionID
			result.TextAnswer = answer.TextAnswer
			result.IsCorrect = answer.IsCorrect
		}

		breakdown = append(breakdown, result)
	}
	return breakdown, nil
}

func shuffleIDs(ids []uint) {
	rand.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
}
