package account

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report fields by their JSON names
	v.RegisterTagNameFunc(JSONFieldName)

	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}

	return v
}

// JSONFieldName resolves the JSON name of a struct field for validator errors.
func JSONFieldName(sf reflect.StructField) string {
	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")

	if name == "-" {
		return ""
	}

	return name
}

func validateStruct(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	return &ValidationError{Fields: Violations(verrs)}
}

// Violations converts validator errors into FieldViolations.
func Violations(verrs validator.ValidationErrors) []FieldViolation {
	out := make([]FieldViolation, 0, len(verrs))

	for _, fe := range verrs {
		out = append(out, FieldViolation{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Param:   fe.Param(),
			Message: violationMessage(fe.Field(), fe.Tag(), fe.Param()),
		})
	}

	return out
}

func violationMessage(field, rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "notblank":
		return "must not be blank"
	case "email":
		return "must be a valid email address"
	case "uuid":
		return "must be a valid UUID"
	case "min":
		if field == "edad" {
			return fmt.Sprintf("must be at least %d years old", user.MinAge)
		}
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
