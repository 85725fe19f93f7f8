package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/examforge/exam-session-service/internal/models"
	"github.com/examforge/exam-session-service/internal/repositories"
	"github.com/examforge/exam-session-service/internal/services"
	"github.com/examforge/exam-session-service/internal/utils"
)

// SessionHandler exposes the exam-taking surface: access checks, the session
// lifecycle, answers, violations, and results.
type SessionHandler struct {
	BaseHandler
	accessService    services.AccessService
	sessionService   services.SessionService
	answerService    services.AnswerService
	violationService services.ViolationService
}

func NewSessionHandler(
	accessService services.AccessService,
	sessionService services.SessionService,
	answerService services.AnswerService,
	violationService services.ViolationService,
	logger utils.Logger,
) *SessionHandler {
	return &SessionHandler{
		BaseHandler:      NewBaseHandler(logger),
		accessService:    accessService,
		sessionService:   sessionService,
		answerService:    answerService,
		violationService: violationService,
	}
}

// CheckAccess evaluates whether the caller may start the exam, without
// consuming anything. Denials are 200 responses with allowed=false; the
// client uses the reason code to render the right message.
func (h *SessionHandler) CheckAccess(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	decision, err := h.accessService.CheckAccess(c.Request.Context(), examID, userID, c.Query("invitation_token"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

// StartSession creates a new exam session
func (h *SessionHandler) StartSession(c *gin.Context) {
	h.LogRequest(c, "Starting exam session")

	var req services.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	session, err := h.sessionService.Start(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// GetStatus returns the authoritative session state, including the
// server-computed remaining time.
func (h *SessionHandler) GetStatus(c *gin.Context) {
	sessionID := h.parseIDParam(c, "id")
	if sessionID == 0 {
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	status, err := h.sessionService.GetStatus(c.Request.Context(), sessionID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetQuestion serves one sanitized question from the session's pinned order.
func (h *SessionHandler) GetQuestion(c *gin.Context) {
	sessionID := h.parseIDParam(c, "id")
	if sessionID == 0 {
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid index parameter",
			Details: c.Param("index"),
		})
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	question, err := h.sessionService.GetQuestion(c.Request.Context(), sessionID, index, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

// SubmitAnswer records one answer for a question in the session
func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	sessionID := h.parseIDParam(c, "id")
	if sessionID == 0 {
		return
	}

	var req services.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	feedback, err := h.answerService.Submit(c.Request.Context(), sessionID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, feedback)
}

// TrackViolation records a proctoring event against the session
func (h *SessionHandler) TrackViolation(c *gin.Context) {
	sessionID := h.parseIDParam(c, "id")
	if sessionID == 0 {
		return
	}

	var req services.TrackViolationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	resp, err := h.violationService.Track(c.Request.Context(), sessionID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListViolations returns the violation log for a session
func (h *SessionHandler) ListViolations(c *gin.Context) {
	sessionID := h.parseIDParam(c, "id")
	if sessionID == 0 {
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	violations, err := h.violationService.ListBySession(c.Request.Context(), sessionID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"violations": violations})
}

// CompleteSession submits the session for grading
func (h *SessionHandler) CompleteSession(c *gin.Context) {
	sessionID := h.parseIDParam(c, "id")
	if sessionID == 0 {
		return
	}

	h.LogRequest(c, "Completing exam session", "session_id", sessionID)

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	results, err := h.sessionService.Complete(c.Request.Context(), sessionID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

// AbandonSession ends the session without grading
func (h *SessionHandler) AbandonSession(c *gin.Context) {
	sessionID := h.parseIDParam(c, "id")
	if sessionID == 0 {
		return
	}

	h.LogRequest(c, "Abandoning exam session", "session_id", sessionID)

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	if err := h.sessionService.Abandon(c.Request.Context(), sessionID, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Session abandoned"})
}

// GetResults returns the graded outcome of a finalized session
func (h *SessionHandler) GetResults(c *gin.Context) {
	sessionID := h.parseIDParam(c, "id")
	if sessionID == 0 {
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	results, err := h.sessionService.GetResults(c.Request.Context(), sessionID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

// HandleTimeout lets a client report that its timer ran out. The server
// re-checks against its own clock; a premature report changes nothing.
func (h *SessionHandler) HandleTimeout(c *gin.Context) {
	sessionID := h.parseIDParam(c, "id")
	if sessionID == 0 {
		return
	}

	if _, ok := h.currentUserID(c); !ok {
		return
	}

	if err := h.sessionService.HandleTimeout(c.Request.Context(), sessionID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Timeout processed"})
}

// ListSessions lists sessions visible to the caller
func (h *SessionHandler) ListSessions(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	filters := parseSessionFilters(c)
	sessions, total, err := h.sessionService.List(c.Request.Context(), filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    total,
	})
}

func parseSessionFilters(c *gin.Context) repositories.SessionFilters {
	filters := repositories.SessionFilters{
		Limit:     20,
		SortBy:    "started_at",
		SortOrder: "desc",
	}

	if v := c.Query("status"); v != "" {
		status := models.SessionStatus(v)
		filters.Status = &status
	}
	if v := c.Query("exam_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			examID := uint(id)
			filters.ExamID = &examID
		}
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			filters.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filters.Offset = n
		}
	}
	return filters
}
