package classroom

import (
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/p-n-ai/pai-school/internal/platform/apperr"
)

const (
	requiredMessage    = "Fill in all required fields"
	maxStudentsMessage = "Max students must be a positive number"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func inputValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks in after trimming. Missing fields share one message.
func Validate(in Input) error {
	err := inputValidator().Struct(in.normalized())
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperr.Invalid("class", err.Error())
	}

	fields := map[string]string{}
	for _, fe := range fieldErrs {
		if fe.StructField() == "MaxStudents" {
			fields["max_students"] = maxStudentsMessage
			continue
		}
		fields["required"] = requiredMessage
	}
	return apperr.NewValidation(fields)
}
