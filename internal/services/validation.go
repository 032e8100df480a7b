package services

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	validate   = newValidator()
	slugRegexp = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	keyRegexp  = regexp.MustCompile(`^[a-z0-9_.]+$`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report json field names so handlers can echo them back
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugRegexp.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("setting_key", func(fl validator.FieldLevel) bool {
		return keyRegexp.MatchString(fl.Field().String())
	})
	return v
}

// validateStruct runs struct tags and converts failures into ValidationErrors
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate request: %w", err)
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, NewValidationError(fe.Field(), validationMessage(fe)))
	}
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "uppercase":
		return "must be uppercase"
	case "slug":
		return "must contain lowercase letters, numbers and single dashes"
	case "setting_key":
		return "must contain lowercase letters, numbers, dots and underscores"
	}
	return fmt.Sprintf("failed on %s", fe.Tag())
}

// appendIf adds a field error when cond holds
func appendIf(errs ValidationErrors, cond bool, field, message string) ValidationErrors {
	if cond {
		errs = append(errs, NewValidationError(field, message))
	}
	return errs
}

// mergeValidation combines tag validation with manual checks
func mergeValidation(err error, extra ValidationErrors) error {
	if err == nil {
		if len(extra) == 0 {
			return nil
		}
		return extra
	}
	var tagged ValidationErrors
	if errors.As(err, &tagged) {
		return append(tagged, extra...)
	}
	return err
}

func isNegative(d decimal.Decimal) bool {
	return d.IsNegative()
}
