package serrors

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// BaseError is a coded error suitable for serialization at an API boundary.
type BaseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *BaseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code, message, field string) *BaseError {
	return &BaseError{Code: code, Message: message, Field: field}
}

func NewFieldRequiredError(field string) *BaseError {
	return &BaseError{Code: "FIELD_REQUIRED", Message: "field is required", Field: field}
}

// AsBase unwraps err to a *BaseError if one is present in its chain.
func AsBase(err error) (*BaseError, bool) {
	var base *BaseError
	if errors.As(err, &base) {
		return base, true
	}
	return nil, false
}

// ValidationErrors maps DTO field names to coded errors.
type ValidationErrors map[string]*BaseError

func (v ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed on %d fields", len(v))
}

// ProcessValidatorErrors converts go-playground validator output into
// ValidationErrors keyed by struct field.
func ProcessValidatorErrors(err error) ValidationErrors {
	out := ValidationErrors{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return out
	}
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			out[fe.Field()] = NewFieldRequiredError(fe.Field())
		default:
			out[fe.Field()] = NewError(
				"FIELD_INVALID",
				fmt.Sprintf("failed %q validation", fe.Tag()),
				fe.Field(),
			)
		}
	}
	return out
}
