package model

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// PropertyKind is the value shape a field accepts.
type PropertyKind string

const (
	KindString   PropertyKind = "string"
	KindInt      PropertyKind = "int"
	KindFloat    PropertyKind = "float"
	KindBool     PropertyKind = "bool"
	KindDateTime PropertyKind = "datetime"
	KindChoice   PropertyKind = "choice"
)

// PropertyValidationError is returned when a value does not satisfy the
// validator of its property. The prior value of the property is kept.
type PropertyValidationError struct {
	Property string
	Value    any
	Expected string
}

func (e *PropertyValidationError) Error() string {
	return fmt.Sprintf("invalid value for property '%s': expected %s, got %v (%T)", e.Property, e.Expected, e.Value, e.Value)
}

// Validator checks a value and returns it coerced to the stored type.
type Validator interface {
	Validate(value any) (any, error)
}

func invalid(value any, expected string, args ...any) error {
	return &PropertyValidationError{Value: value, Expected: fmt.Sprintf(expected, args...)}
}

// StringValidator accepts strings (and scalars rendered as strings) within
// the length bounds that match Pattern when set. A MaxLength of 0 is unbounded.
type StringValidator struct {
	MinLength int
	MaxLength int
	Pattern   *regexp.Regexp
}

func (v *StringValidator) Validate(value any) (any, error) {
	s, ok := asString(value)
	if !ok {
		return nil, invalid(value, "string")
	}

	n := utf8.RuneCountInString(s)
	if n < v.MinLength {
		return nil, invalid(value, "string length must be at least %d", v.MinLength)
	}
	if v.MaxLength > 0 && n > v.MaxLength {
		return nil, invalid(value, "string length must be at most %d", v.MaxLength)
	}
	if v.Pattern != nil && !v.Pattern.MatchString(s) {
		return nil, invalid(value, "string must match pattern %s", v.Pattern.String())
	}

	return s, nil
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// EmailValidator accepts syntactically valid e-mail addresses.
type EmailValidator struct{}

func (EmailValidator) Validate(value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, invalid(value, "email address")
	}

	s = strings.TrimSpace(s)
	if !emailPattern.MatchString(s) || validate.Var(s, "email") != nil {
		return nil, invalid(value, "valid email address")
	}

	return s, nil
}

// IntegerValidator accepts integral numbers within the optional bounds.
type IntegerValidator struct {
	Min *int
	Max *int
}

func (v *IntegerValidator) Validate(value any) (any, error) {
	n, ok := asInt(value)
	if !ok {
		return nil, invalid(value, "integer")
	}
	if v.Min != nil && n < *v.Min {
		return nil, invalid(value, "value must be at least %d", *v.Min)
	}
	if v.Max != nil && n > *v.Max {
		return nil, invalid(value, "value must be at most %d", *v.Max)
	}
	return n, nil
}

// FloatValidator accepts numbers within the optional bounds.
type FloatValidator struct {
	Min *float64
	Max *float64
}

func (v *FloatValidator) Validate(value any) (any, error) {
	f, ok := asFloat(value)
	if !ok {
		return nil, invalid(value, "number")
	}
	if v.Min != nil && f < *v.Min {
		return nil, invalid(value, "value must be at least %g", *v.Min)
	}
	if v.Max != nil && f > *v.Max {
		return nil, invalid(value, "value must be at most %g", *v.Max)
	}
	return f, nil
}

// BoolValidator accepts booleans and their common string forms.
type BoolValidator struct{}

func (BoolValidator) Validate(value any) (any, error) {
	switch b := value.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return nil, invalid(value, "boolean")
		}
		return parsed, nil
	}

	if n, ok := asInt(value); ok && (n == 0 || n == 1) {
		return n == 1, nil
	}
	return nil, invalid(value, "boolean")
}

// DateTimeValidator accepts time values and parseable date strings.
type DateTimeValidator struct{}

func (DateTimeValidator) Validate(value any) (any, error) {
	switch t := value.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return nil, invalid(value, "date and time")
		}
		return *t, nil
	case string:
		parsed, err := ParseDateTime(t)
		if err != nil {
			return nil, invalid(value, "ISO-8601 date and time")
		}
		return parsed, nil
	}
	return nil, invalid(value, "date and time")
}

// ParseDateTime parses RFC 3339 first and falls back to the tolerant parser
// for the other layouts users and services produce.
func ParseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return dateparse.ParseIn(s, time.UTC)
}

// ListValidator accepts one of Choices. An empty value is accepted as ""
// when AllowEmpty is set.
type ListValidator struct {
	Choices    []string
	AllowEmpty bool
}

func (v *ListValidator) Validate(value any) (any, error) {
	s, ok := asString(value)
	if !ok {
		return nil, invalid(value, "one of: %s", strings.Join(v.Choices, ", "))
	}
	if s == "" && v.AllowEmpty {
		return "", nil
	}
	if !slices.Contains(v.Choices, s) {
		return nil, invalid(value, "one of: %s", strings.Join(v.Choices, ", "))
	}
	return s, nil
}

func asString(value any) (string, bool) {
	switch s := value.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	case json.Number:
		return s.String(), true
	case fmt.Stringer:
		return s.String(), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", s), true
	case float32, float64:
		return fmt.Sprintf("%v", s), true
	case bool:
		return strconv.FormatBool(s), true
	}
	return "", false
}

func asInt(value any) (int, bool) {
	switch n := value.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int64ToInt(n)
	case uint:
		return uint64ToInt(uint64(n))
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return uint64ToInt(uint64(n))
	case uint64:
		return uint64ToInt(n)
	case float32:
		return asInt(float64(n))
	case float64:
		// -MinInt is 2^63 (2^31) exactly, MaxInt rounds up to it
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) || n < math.MinInt || n >= -math.MinInt {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int64ToInt(i)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func int64ToInt(n int64) (int, bool) {
	if n < math.MinInt || n > math.MaxInt {
		return 0, false
	}
	return int(n), true
}

func uint64ToInt(n uint64) (int, bool) {
	if n > math.MaxInt {
		return 0, false
	}
	return int(n), true
}

func asFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	if i, ok := asInt(value); ok {
		return float64(i), true
	}
	return 0, false
}
