// Package validation builds the shared struct validator.
package validation

import (
	"errors"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// New returns a validator that understands decimal.Decimal fields,
// so tags like `validate:"gt=0"` work on prices.
func New() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{}, decimal.NullDecimal{})
	return v
}

func decimalValue(field reflect.Value) any {
	switch d := field.Interface().(type) {
	case decimal.Decimal:
		return d.InexactFloat64()
	case decimal.NullDecimal:
		if !d.Valid {
			return nil
		}
		return d.Decimal.InexactFloat64()
	}
	return nil
}

// FieldErrors flattens validator errors into field -> failed rule.
// Returns nil when err is not a validation error.
func FieldErrors(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	out := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		out[fieldErr.Field()] = "failed on rule: " + fieldErr.Tag()
	}
	return out
}
