package app

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"lending/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names so errors match request bodies.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct runs the struct tags of s and collects every violation into
// a *domain.ValidationError. It returns an empty error when s is valid.
func validateStruct(s any) (*domain.ValidationError, error) {
	ve := &domain.ValidationError{}
	err := validate.Struct(s)
	if err == nil {
		return ve, nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil, err
	}
	for _, fe := range fieldErrs {
		ve.Add(fe.Field(), message(fe))
	}
	return ve, nil
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "can't be blank"
	case "max":
		return fmt.Sprintf("is too long (maximum is %s characters)", fe.Param())
	case "min":
		return fmt.Sprintf("is too short (minimum is %s characters)", fe.Param())
	case "len":
		return fmt.Sprintf("is the wrong length (should be %s characters)", fe.Param())
	case "gt":
		return "must be greater than " + fe.Param()
	case "email":
		return "is not a valid email"
	case "oneof":
		return "must be one of: " + fe.Param()
	}
	return "is invalid"
}
