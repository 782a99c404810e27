package templates

import "fmt"

// NotFoundError reports a template ID with no file behind it.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("template not found: %s", e.ID)
}

// ConflictError reports an attempt to create a template whose ID is taken.
type ConflictError struct {
	ID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("template already exists: %s", e.ID)
}

// ValidationError reports a template or field file that cannot be accepted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}
