package validator

import (
	"sync"

	"github.com/go-playground/validator/v10"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
)

var (
	validate *validator.Validate
	once     sync.Once
)

// Get returns the shared validator instance.
func Get() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct checks the struct tags of v and reports each failed field.
func ValidateStruct(v any) error {
	if err := Get().Struct(v); err != nil {
		details := make(map[string]any)
		var validateErrs validator.ValidationErrors
		if ierr.As(err, &validateErrs) {
			for _, fe := range validateErrs {
				details[fe.Namespace()] = fe.Error()
			}
		}
		return ierr.WithError(err).
			WithHint("validation failed").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}
	return nil
}
