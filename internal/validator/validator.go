package validator

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/examforge/exam-session-service/internal/models"
)

// Validator wraps go-playground validation with domain rules
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	validate := validator.New()

	v := &Validator{validate: validate}
	v.registerDomainRules()

	return v
}

// Validate validates a struct and returns ValidationErrors or nil
func (v *Validator) Validate(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

func (v *Validator) registerDomainRules() {
	// Exam duration in minutes (1-480)
	v.validate.RegisterValidation("exam_duration", func(fl validator.FieldLevel) bool {
		duration := fl.Field().Int()
		return duration >= 1 && duration <= 480
	})

	// Points per question (1-100)
	v.validate.RegisterValidation("points_range", func(fl validator.FieldLevel) bool {
		points := fl.Field().Int()
		return points >= 1 && points <= 100
	})

	// Exam title (1-200 characters after trimming)
	v.validate.RegisterValidation("exam_title", func(fl validator.FieldLevel) bool {
		title := strings.TrimSpace(fl.Field().String())
		return len(title) >= 1 && len(title) <= 200
	})

	v.validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		qType := models.QuestionType(fl.Field().String())
		switch qType {
		case models.MultipleChoice, models.TrueFalse, models.Essay, models.FillInBlank:
			return true
		}
		return false
	})

	v.validate.RegisterValidation("exam_category", func(fl validator.FieldLevel) bool {
		category := models.ExamCategory(fl.Field().String())
		switch category {
		case models.CategoryPractice, models.CategoryTest, models.CategoryRecruitment,
			models.CategoryCompetition, models.CategoryChallenge:
			return true
		}
		return false
	})

	v.validate.RegisterValidation("violation_type", func(fl validator.FieldLevel) bool {
		vType := models.ViolationType(fl.Field().String())
		switch vType {
		case models.ViolationTabSwitch, models.ViolationWindowBlur, models.ViolationCopyAttempt,
			models.ViolationPasteAttempt, models.ViolationFullscreenExit:
			return true
		}
		return false
	})

	// Optional timestamp that must be in the future when present
	v.validate.RegisterValidation("future_date", func(fl validator.FieldLevel) bool {
		field := fl.Field()
		if field.Kind() == reflect.Ptr && field.IsNil() {
			return true
		}

		var ts time.Time
		if field.Kind() == reflect.Ptr {
			ts = field.Elem().Interface().(time.Time)
		} else {
			ts = field.Interface().(time.Time)
		}

		return ts.After(time.Now())
	})
}
