package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Entity is anything persisted as a document keyed by id.
type Entity interface {
	GetID() string
}

// Validate checks the struct tags of an entity and flattens validator errors into one message.
func Validate(value any) error {
	if err := validate.Struct(value); err != nil {
		return validationErrorToString(value, err)
	}
	return nil
}

func validationErrorToString(input any, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("field '%s' failed rule '%s'", fe.StructField(), fe.Tag()))
	}
	return fmt.Errorf("invalid %T: %s", input, strings.Join(parts, "; "))
}
