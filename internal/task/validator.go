package task

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	recordValidator     *validator.Validate
	recordValidatorOnce sync.Once
)

func getValidator() *validator.Validate {
	recordValidatorOnce.Do(func() {
		recordValidator = validator.New(validator.WithRequiredStructEnabled())
	})
	return recordValidator
}

// ValidationError represents a task record validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "task." + e.Field + ": " + e.Message
	}
	return e.Message
}

// ValidateRecord checks a record received from the backend before it is
// written to the table.
func ValidateRecord(t Task) error {
	err := getValidator().Struct(t)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validate task: %w", err)
	}

	// Report the first failure; the rest are usually consequences of it.
	fe := fieldErrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "Task.")
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: field, Message: "is required"}
	case "gte", "lte":
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be between 0 and 100 (got %v)", fe.Value())}
	default:
		return &ValidationError{Field: field, Message: fmt.Sprintf("failed validation '%s'", fe.Tag())}
	}
}
