package models

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func messageValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

func ValidateMessage(msg *Message) error {
	if msg == nil {
		return &ValidationError{
			Field:   "message",
			Message: "message cannot be nil",
		}
	}

	if err := messageValidator().Struct(msg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{
				Field:   fe.Namespace(),
				Message: fmt.Sprintf("failed on '%s' constraint", fe.Tag()),
			}
		}
		return &ValidationError{Field: "message", Message: err.Error()}
	}

	if msg.Details.ConfirmedAt != nil && msg.Details.RejectedAt != nil {
		return &ValidationError{
			Field:   "details",
			Message: "a message cannot be both confirmed and rejected",
		}
	}

	if msg.Content != nil && len(msg.TransportedConfirmations) > 0 && msg.Kind() != KindBusiness {
		return &ValidationError{
			Field:   "content",
			Message: "evidence messages cannot carry business content",
		}
	}

	return nil
}
