// Package validation validates configuration structs.
//
// Struct tags are checked with go-playground/validator; rules that span
// several fields are collected with the programmatic Validator. Both report
// failures as a *Error listing every offending field.
//
//	type Limit struct {
//	    MaxRequests int           `validate:"min=1"`
//	    Window      time.Duration `validate:"gt=0"`
//	}
//	err := validation.Validate(limit)
//
//	v := validation.New()
//	v.Check(p.BackoffMultiplier >= 1, "backoff_multiplier", "must be at least 1")
//	err := v.Err()
package validation
