package services

import (
	"errors"
	"fmt"

	"github.com/openedu/course-service/internal/models"
	"github.com/openedu/course-service/internal/repositories"
	"github.com/openedu/course-service/internal/validator"
)

// Sentinel errors for the domain taxonomy. Typed errors below wrap these so
// callers can match with errors.Is.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrPermission    = errors.New("permission denied")
)

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string
	ID       interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NewNotFoundError(resource string, id interface{}) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// AlreadyExistsError carries the conflicting resource and the field that
// collided.
type AlreadyExistsError struct {
	Resource string
	Field    string
	Value    interface{}
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s with %s %v already exists", e.Resource, e.Field, e.Value)
}

func (e *AlreadyExistsError) Unwrap() error { return ErrAlreadyExists }

func NewAlreadyExistsError(resource, field string, value interface{}) *AlreadyExistsError {
	return &AlreadyExistsError{Resource: resource, Field: field, Value: value}
}

// PermissionError describes a denied action.
type PermissionError struct {
	UserID   string
	Resource string
	Action   string
	Reason   string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s may not %s %s: %s", e.UserID, e.Action, e.Resource, e.Reason)
}

func (e *PermissionError) Unwrap() error { return ErrPermission }

func NewPermissionError(userID, resource, action, reason string) *PermissionError {
	return &PermissionError{UserID: userID, Resource: resource, Action: action, Reason: reason}
}

// NewValidationError builds a single-field validation failure in the
// validator package's shape.
func NewValidationError(field, message string, value interface{}) *validator.ValidationError {
	return &validator.ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
		Rule:    "business_logic",
	}
}

// IsValidationError reports whether err is a validation failure.
func IsValidationError(err error) bool {
	var ve validator.ValidationErrors
	return errors.As(err, &ve)
}

// constraintConflicts maps violated unique constraints to descriptive
// conflicts.
var constraintConflicts = map[string]AlreadyExistsError{
	models.ConstraintUniqueCourseCode:           {Resource: "course", Field: "code"},
	models.ConstraintUniqueUserPerCourse:        {Resource: "enrollment", Field: "user"},
	models.ConstraintUniqueUnitNamePerCourse:    {Resource: "unit", Field: "name"},
	models.ConstraintUniqueUnitOrderPerCourse:   {Resource: "unit", Field: "content order"},
	models.ConstraintUniqueTopicNamePerUnit:     {Resource: "topic", Field: "name"},
	models.ConstraintUniqueTopicOrderPerUnit:    {Resource: "topic", Field: "content order"},
	models.ConstraintUniqueQuestionOrderPerTopic: {Resource: "question", Field: "problem number"},
	models.ConstraintUniqueGradePerUserQuestion: {Resource: "grade", Field: "user and question"},
}

// translateRepositoryError maps storage-layer errors into the domain
// taxonomy: missing rows to NotFoundError, recognized constraint violations
// to AlreadyExistsError, anything else wrapped with its cause.
func translateRepositoryError(err error, resource string, id interface{}) error {
	if err == nil {
		return nil
	}
	if repositories.IsNotFoundError(err) {
		return NewNotFoundError(resource, id)
	}
	if ce, ok := repositories.AsConstraintError(err); ok {
		if ce.Unique {
			if conflict, known := constraintConflicts[ce.Constraint]; known {
				conflict.Value = id
				return &conflict
			}
			return &AlreadyExistsError{Resource: resource, Field: "unique field", Value: id}
		}
		// Foreign-key violation means the referenced parent is gone.
		return NewNotFoundError(resource, id)
	}
	return fmt.Errorf("%s operation failed: %w", resource, err)
}
