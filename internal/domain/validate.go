package domain

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()

		// Use JSON tag names for errors instead of Go struct names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		_ = validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
			return QuestionType(fl.Field().String()).Known()
		})
		_ = validate.RegisterValidation("difficulty", func(fl validator.FieldLevel) bool {
			return Difficulty(fl.Field().String()).Known()
		})
	})
	return validate
}

// ValidateGenerateRequest checks the preconditions of a generation request.
// maxCount overrides the static upper bound when positive.
func ValidateGenerateRequest(req *GenerateRequest, maxCount int) error {
	var fields []FieldError
	if strings.TrimSpace(req.Prompt) == "" && len(req.MaterialIDs) == 0 {
		fields = append(fields, FieldError{Field: "prompt", Error: "a prompt or at least one material is required"})
	}
	if maxCount > 0 && req.QuestionCount > maxCount {
		fields = append(fields, FieldError{Field: "question_count", Error: "must be at most " + strconv.Itoa(maxCount)})
	}

	if err := validatorInstance().Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return errors.Wrap(err, "validate generate request")
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fieldName(fe), Error: fieldMessage(fe)})
		}
	}

	if len(fields) > 0 {
		return NewValidationError("invalid generate request", fields...)
	}
	return nil
}

func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "question_type":
		return fmt.Sprintf("unknown question type %q", fe.Value())
	case "difficulty":
		return fmt.Sprintf("unknown difficulty %q", fe.Value())
	}
	return "failed " + fe.Tag() + " validation"
}
