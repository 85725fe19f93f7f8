package models

// ErrorResponse is the standard error payload returned by handlers.
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse is the standard success payload for operations without a body.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ExamSummary is the public view of an exam handed to would-be takers.
// It never includes questions, options, or answer keys.
type ExamSummary struct {
	ID            uint         `json:"id"`
	Title         string       `json:"title"`
	Description   *string      `json:"description"`
	Category      ExamCategory `json:"category"`
	Subject       *string      `json:"subject"`
	Year          *int         `json:"year"`
	Duration      *int         `json:"duration"`
	QuestionCount int          `json:"question_count"`
}

// SummaryOf builds the answer-key-free public view of an exam.
func SummaryOf(exam *Exam) *ExamSummary {
	return &ExamSummary{
		ID:            exam.ID,
		Title:         exam.Title,
		Description:   exam.Description,
		Category:      exam.Category,
		Subject:       exam.Subject,
		Year:          exam.Year,
		Duration:      exam.Duration,
		QuestionCount: len(exam.Questions),
	}
}
