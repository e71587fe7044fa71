package validator

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/openedu/course-service/internal/models"
)

// ValidationError represents one failed field.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}

// BusinessValidator handles struct-tag and business rule validation.
type BusinessValidator struct {
	validate *validator.Validate
}

// Validator is the name services consume the validator under.
type Validator = BusinessValidator

func New() *Validator {
	return NewBusinessValidator()
}

func NewBusinessValidator() *BusinessValidator {
	validate := validator.New()

	bv := &BusinessValidator{validate: validate}
	bv.registerBusinessRules()

	return bv
}

// Validate validates struct tags on any request struct.
func (bv *BusinessValidator) Validate(s interface{}) ValidationErrors {
	var errors ValidationErrors

	err := bv.validate.Struct(s)
	if err != nil {
		var fieldErrors validator.ValidationErrors
		if ok := asValidationErrors(err, &fieldErrors); ok {
			for _, fieldErr := range fieldErrors {
				errors = append(errors, ValidationError{
					Field:   fieldErr.Field(),
					Message: bv.getErrorMessage(fieldErr),
					Value:   fieldErr.Value(),
					Rule:    fieldErr.Tag(),
				})
			}
		} else {
			errors = append(errors, ValidationError{
				Field:   "request",
				Message: err.Error(),
				Rule:    "struct",
			})
		}
	}

	return errors
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	fieldErrors, ok := err.(validator.ValidationErrors)
	if ok {
		*target = fieldErrors
	}
	return ok
}

// ValidateCourseCreate validates course creation.
func (bv *BusinessValidator) ValidateCourseCreate(req *CourseCreateRequest) ValidationErrors {
	errors := bv.Validate(req)

	if !req.StartDate.IsZero() && !req.EndDate.IsZero() && req.EndDate.Before(req.StartDate) {
		errors = append(errors, ValidationError{
			Field:   "end_date",
			Message: "must not be before start_date",
			Value:   req.EndDate,
			Rule:    "date_order",
		})
	}

	return errors
}

// ValidateTopicCreate validates topic creation, including the date window
// ordering startDate <= endDate <= deadDate.
func (bv *BusinessValidator) ValidateTopicCreate(req *TopicCreateRequest) ValidationErrors {
	errors := bv.Validate(req)
	errors = append(errors, bv.validateTopicDates(req.StartDate, req.EndDate, req.DeadDate)...)
	return errors
}

// ValidateTopicUpdate validates a partial topic update against the existing
// row, so the merged date window stays ordered.
func (bv *BusinessValidator) ValidateTopicUpdate(req *TopicUpdateRequest, existing *models.CourseTopicContent) ValidationErrors {
	errors := bv.Validate(req)

	start, end, dead := existing.StartDate, existing.EndDate, existing.DeadDate
	if req.StartDate != nil {
		start = *req.StartDate
	}
	if req.EndDate != nil {
		end = *req.EndDate
	}
	if req.DeadDate != nil {
		dead = *req.DeadDate
	}
	errors = append(errors, bv.validateTopicDates(start, end, dead)...)

	return errors
}

func (bv *BusinessValidator) validateTopicDates(start, end, dead time.Time) ValidationErrors {
	var errors ValidationErrors

	if end.Before(start) {
		errors = append(errors, ValidationError{
			Field:   "end_date",
			Message: "must not be before start_date",
			Value:   end,
			Rule:    "date_order",
		})
	}
	if dead.Before(end) {
		errors = append(errors, ValidationError{
			Field:   "dead_date",
			Message: "must not be before end_date",
			Value:   dead,
			Rule:    "date_order",
		})
	}

	return errors
}

// ValidateTopicOverride checks the merged per-student date window keeps its
// ordering when overlaid on the base topic.
func (bv *BusinessValidator) ValidateTopicOverride(req *TopicOverrideRequest, topic *models.CourseTopicContent) ValidationErrors {
	errors := bv.Validate(req)

	start, end, dead := topic.StartDate, topic.EndDate, topic.DeadDate
	if req.StartDate != nil {
		start = *req.StartDate
	}
	if req.EndDate != nil {
		end = *req.EndDate
	}
	if req.DeadDate != nil {
		dead = *req.DeadDate
	}
	errors = append(errors, bv.validateTopicDates(start, end, dead)...)

	return errors
}

// ValidateGradeFilters checks exactly one content scope is set.
func (bv *BusinessValidator) ValidateGradeFilters(req *GetGradesRequest) ValidationErrors {
	set := 0
	for _, id := range []*uint{req.CourseID, req.UnitID, req.TopicID, req.QuestionID} {
		if id != nil {
			set++
		}
	}
	if set != 1 {
		return ValidationErrors{{
			Field:   "filter",
			Message: "exactly one of course_id, unit_id, topic_id, question_id must be set",
			Value:   set,
			Rule:    "exactly_one_scope",
		}}
	}
	return nil
}

// registerBusinessRules registers custom tag validators.
func (bv *BusinessValidator) registerBusinessRules() {
	// Content names: 1-200 characters after trimming.
	bv.validate.RegisterValidation("content_name", func(fl validator.FieldLevel) bool {
		name := strings.TrimSpace(fl.Field().String())
		return len(name) >= 1 && len(name) <= 200
	})

	// Attempt caps: -1 means unlimited, otherwise a positive cap.
	bv.validate.RegisterValidation("attempt_cap", func(fl validator.FieldLevel) bool {
		cap := fl.Field().Int()
		return cap == models.UnlimitedAttempts || cap >= 1
	})
}

func (bv *BusinessValidator) getErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", err.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", err.Param())
	case "content_name":
		return "must be 1-200 characters"
	case "attempt_cap":
		return "must be -1 (unlimited) or a positive number"
	default:
		return fmt.Sprintf("failed %s validation", err.Tag())
	}
}
