package services

import (
	"errors"
	"fmt"
)

// Sentinel errors mapped to HTTP status codes by the handlers.
//
// ErrSessionAccessDenied deliberately covers both "no such session" and
// "session owned by someone else" so responses cannot be used to probe for
// valid session ids.
var (
	ErrExamNotFound      = errors.New("exam not found")
	ErrQuestionNotFound  = errors.New("question not found")
	ErrExamNotPublished  = errors.New("exam is not published")
	ErrExamNotStarted    = errors.New("exam has not opened yet")
	ErrExamWindowClosed  = errors.New("exam window has closed")
	ErrUserBanned        = errors.New("user is not permitted to take exams")
	ErrInvitationRequired = errors.New("exam requires an invitation")
	ErrInvitationInvalid  = errors.New("invitation is not valid for this exam")
	ErrInvitationExpired  = errors.New("invitation has expired")
	ErrInvitationUsed     = errors.New("invitation has already been used")
	ErrInvitationMismatch = errors.New("invitation is issued to a different user")

	ErrSessionAccessDenied    = errors.New("session not found or not accessible")
	ErrSessionNotActive       = errors.New("session is not active")
	ErrSessionExpired         = errors.New("session time limit has elapsed")
	ErrSessionAlreadyTerminal = errors.New("session has already ended")
	ErrSessionNotCompleted    = errors.New("session results are not available yet")

	ErrAnswerAlreadySubmitted = errors.New("question has already been answered in this session")
	ErrQuestionNotInSession   = errors.New("question is not part of this session")
	ErrQuestionIndexOutOfRange = errors.New("question index is out of range")
	ErrNoQuestionsAvailable   = errors.New("exam has no questions")

	ErrConcurrentSessionLimit = errors.New("another session is already active")
	ErrBotVerificationFailed  = errors.New("bot verification failed")
)

// PermissionError carries who tried to do what to which resource.
type PermissionError struct {
	UserID     string
	ResourceID uint
	Resource   string
	Action     string
	Reason     string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %d: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}
