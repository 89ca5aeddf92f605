package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return field.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if value, ok := field.Interface().(OptionalString); ok {
			return value.Value
		}
		return nil
	}, OptionalString{})
	if err := v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// validateInput runs the struct tags of input and converts failures into a
// VALIDATION_ERROR carrying one issue per field.
func validateInput(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate input: %w", err)
	}
	issues := make([]FieldIssue, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		issues = append(issues, FieldIssue{Field: fieldPath(fe), Message: issueMessage(fe)})
	}
	return validationFailed(issues)
}

// fieldPath drops the struct name from the namespace: "CreatePostInput.tags[0]" -> "tags[0]".
func fieldPath(fe validator.FieldError) string {
	parts := strings.SplitN(fe.Namespace(), ".", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return fe.Field()
}

func issueMessage(fe validator.FieldError) string {
	unit := ""
	switch fe.Kind() {
	case reflect.String:
		unit = " characters"
	case reflect.Slice:
		unit = " items"
	}
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s%s", fe.Param(), unit)
	case "max":
		return fmt.Sprintf("must be at most %s%s", fe.Param(), unit)
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "email":
		return "must be a valid email address"
	case "slug":
		return "must contain only lowercase letters, numbers and hyphens"
	}
	return "is invalid"
}

// OptionalString tells an absent JSON field apart from an explicit null.
type OptionalString struct {
	Set   bool
	Valid bool
	Value string
}

func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Valid = false
		o.Value = ""
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Valid = true
	return nil
}

// Ptr returns nil for null and for the empty string.
func (o OptionalString) Ptr() *string {
	if !o.Valid || o.Value == "" {
		return nil
	}
	v := o.Value
	return &v
}
