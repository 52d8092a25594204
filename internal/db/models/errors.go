package models

import "fmt"

// ValidationError is returned from save hooks when a record is incomplete.
type ValidationError struct {
	Model  string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s: %s: %s", e.Model, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s can't be blank", e.Model, e.Field)
}
