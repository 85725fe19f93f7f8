package models

import (
	"strings"
	"time"
)

// ExamInvitation grants access to a gated exam category. It is consumed
// (marked used) at most once, at session-start time; access checks never
// touch UsedAt.
type ExamInvitation struct {
	ID     uint   `json:"id" gorm:"primaryKey"`
	Token  string `json:"token" gorm:"uniqueIndex;not null;size:64"`
	ExamID uint   `json:"exam_id" gorm:"not null;index"`

	// Optional scoping: when set, only the matching user/email may redeem.
	UserID *string `json:"user_id" gorm:"index;size:255"`
	Email  *string `json:"email" gorm:"size:255"`

	ExpiresAt time.Time  `json:"expires_at" gorm:"not null"`
	UsedAt    *time.Time `json:"used_at"`

	CreatedBy string    `json:"created_by" gorm:"not null;size:255"`
	CreatedAt time.Time `json:"created_at"`

	// Relations
	Exam Exam `json:"exam" gorm:"foreignKey:ExamID"`
}

func (ExamInvitation) TableName() string {
	return "exam_invitations"
}

// IsExpired reports whether the invitation has passed its expiry as of now.
func (i *ExamInvitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// IsUsed reports whether the invitation has already been consumed.
func (i *ExamInvitation) IsUsed() bool {
	return i.UsedAt != nil
}

// MatchesUser reports whether the invitation's scoping (if any) matches the
// given requester.
func (i *ExamInvitation) MatchesUser(userID, email string) bool {
	if i.UserID != nil && *i.UserID != userID {
		return false
	}
	if i.Email != nil && !strings.EqualFold(*i.Email, email) {
		return false
	}
	return true
}
