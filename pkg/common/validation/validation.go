package validation

import (
	"fmt"
	"reflect"

	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
)

// MaxSafeInteger is the largest integer offset accepted for byte positions.
const MaxSafeInteger int64 = 1<<53 - 1

// ValidatePositive validates that an integer value is positive (> 0).
// Returns a ValidationError if the value is not positive.
func ValidatePositive(module, field string, value int) error {
	if value <= 0 {
		return sferrors.NewValidationError(module, field, value, "must be positive").
			WithHint("value must be greater than 0")
	}
	return nil
}

// ValidateNonNegative validates that an integer value is non-negative (>= 0).
// Returns a ValidationError if the value is negative.
func ValidateNonNegative(module, field string, value int) error {
	if value < 0 {
		return sferrors.NewValidationError(module, field, value, "cannot be negative").
			WithHint("use 0 or a positive value")
	}
	return nil
}

// ValidateInt64Range validates that min <= value <= max.
// The returned ValidationError matches sferrors.ErrOutOfRange.
func ValidateInt64Range(module, field string, value, min, max int64) error {
	if value < min || value > max {
		return sferrors.NewValidationError(module, field, value, "out of range").
			WithKind(sferrors.ErrOutOfRange).
			WithHint(fmt.Sprintf("must be >= %d and <= %d", min, max))
	}
	return nil
}

// ValidateOffset validates a byte offset: non-negative and not above MaxSafeInteger.
func ValidateOffset(module, field string, value int64) error {
	return ValidateInt64Range(module, field, value, 0, MaxSafeInteger)
}

// ValidateNotNil validates that an interface value is not nil, including
// typed nil pointers stored in an interface.
// Returns a ValidationError if the value is nil.
func ValidateNotNil(module, field string, value interface{}) error {
	if isNil(value) {
		return sferrors.NewValidationError(module, field, nil, "cannot be nil").
			WithHint("provide a valid " + field)
	}
	return nil
}

// ValidateNotEmpty validates that a string value is not empty.
// Returns a ValidationError if the string is empty.
func ValidateNotEmpty(module, field string, value string) error {
	if value == "" {
		return sferrors.NewValidationError(module, field, value, "cannot be empty").
			WithHint("provide a non-empty " + field)
	}
	return nil
}

func isNil(value interface{}) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
