// Package utils holds small request-handling helpers shared by the routes.
package utils

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks value against its struct validation tags and returns it
// with a readable error when a rule fails.
func Validate[T any](value T) (T, error) {
	if err := validate.Struct(value); err != nil {
		return value, describeValidationError(value, err)
	}
	return value, nil
}

func describeValidationError(input any, err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	var b strings.Builder
	for _, fe := range verrs {
		fmt.Fprintf(&b, "\n • Failed %T validation for field '%s': rule '%s' expected '%s', got '%v'.",
			input, fe.StructField(), fe.Tag(), fe.Param(), fe.Value())
	}
	return errors.New(b.String())
}
