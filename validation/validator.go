package validation

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error lists every field that failed validation.
type Error struct {
	Fields []FieldError `json:"fields"`
}

func (e *Error) Error() string {
	messages := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		if f.Field == "" {
			messages[i] = f.Message
			continue
		}
		messages[i] = fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return "validation failed: " + strings.Join(messages, "; ")
}

// Validator collects validation errors.
type Validator struct {
	errors []FieldError
}

// New creates a new Validator.
func New() *Validator {
	return &Validator{errors: make([]FieldError, 0)}
}

// AddError adds a field error.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, FieldError{Field: field, Message: message})
}

// HasErrors returns true if there are validation errors.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors.
func (v *Validator) Errors() []FieldError {
	return v.errors
}

// Err returns an *Error if there are validation errors, nil otherwise.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return &Error{Fields: v.errors}
}

// Check adds message for field when ok is false.
func (v *Validator) Check(ok bool, field, message string) *Validator {
	if !ok {
		v.AddError(field, message)
	}
	return v
}

// Required checks if a string is non-empty.
func (v *Validator) Required(field, value string) *Validator {
	return v.Check(strings.TrimSpace(value) != "", field, "is required")
}

// PositiveDuration checks that d is greater than zero.
func (v *Validator) PositiveDuration(field string, d time.Duration) *Validator {
	return v.Check(d > 0, field, "must be greater than 0")
}

// Range checks that value lies in [lo, hi].
func (v *Validator) Range(field string, value, lo, hi float64) *Validator {
	return v.Check(value >= lo && value <= hi, field, fmt.Sprintf("must be between %v and %v", lo, hi))
}

// Struct runs tag validation on s and merges its field errors, prefixing
// each field with prefix.
func (v *Validator) Struct(prefix string, s any) *Validator {
	err := Validate(s)
	if err == nil {
		return v
	}
	var ve *Error
	if !stderrors.As(err, &ve) {
		v.AddError(prefix, err.Error())
		return v
	}
	for _, f := range ve.Fields {
		field := f.Field
		if prefix != "" {
			field = prefix + "." + field
		}
		v.AddError(field, f.Message)
	}
	return v
}
