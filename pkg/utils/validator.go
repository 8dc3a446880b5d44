package utils

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrValidation is wrapped by every error returned from ValidateStruct
var ErrValidation = errors.New("validation failed")

// Periods accepted by the analytics endpoints
var Periods = []string{"day", "week", "month", "quarter", "year"}

var (
	validate     *validator.Validate
	validateOnce sync.Once
	validateErr  error
)

func initValidator() (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.RegisterValidation("period", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		for _, p := range Periods {
			if s == p {
				return true
			}
		}
		return false
	}); err != nil {
		return nil, fmt.Errorf("register period validation: %w", err)
	}

	return v, nil
}

// Validator returns the shared validator instance
func Validator() (*validator.Validate, error) {
	validateOnce.Do(func() {
		validate, validateErr = initValidator()
	})
	return validate, validateErr
}

// ValidateStruct checks payload against its `validate` tags.
// Only the first failing field is reported.
func ValidateStruct(payload any) error {
	v, err := Validator()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if err := v.Struct(payload); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return formatFieldError(fieldErrs[0])
		}
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

func formatFieldError(fe validator.FieldError) error {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%w: %s is required", ErrValidation, field)
	case "gt":
		return fmt.Errorf("%w: %s must be greater than %s", ErrValidation, field, fe.Param())
	case "oneof":
		return fmt.Errorf("%w: %s must be one of [%s]", ErrValidation, field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "period":
		return fmt.Errorf("%w: %s must be one of [%s]", ErrValidation, field, strings.Join(Periods, ", "))
	default:
		return fmt.Errorf("%w: %s failed on %s", ErrValidation, field, fe.Tag())
	}
}
