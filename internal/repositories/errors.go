package repositories

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ConstraintError surfaces a unique or foreign-key violation together with
// the name of the violated constraint so callers can map it to a descriptive
// conflict.
type ConstraintError struct {
	Constraint string
	Unique     bool // false means foreign-key violation
	Err        error
}

func (e *ConstraintError) Error() string {
	kind := "foreign key"
	if e.Unique {
		kind = "unique"
	}
	return fmt.Sprintf("%s constraint %q violated: %v", kind, e.Constraint, e.Err)
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// IsNotFoundError reports whether err represents a missing row.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// AsConstraintError unwraps err into a ConstraintError, if it is one.
func AsConstraintError(err error) (*ConstraintError, bool) {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
