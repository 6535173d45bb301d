// SPDX-License-Identifier: MIT

// Package validate provides the validation error type shared by the
// configuration loader, the workload registry and the version resolver.
package validate

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// ErrValidation matches every validation failure via errors.Is.
var ErrValidation = errors.New("validation failed")

// Error represents one rejected field.
type Error struct {
	Field  string // Field name that failed validation
	Value  any    // The invalid value
	Reason string // Human-readable reason
}

func (e *Error) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

func (e *Error) Unwrap() error {
	return ErrValidation
}

// Fail builds a single-field validation error.
func Fail(field, reason string, value any) error {
	return &Error{Field: field, Reason: reason, Value: value}
}

// Validator accumulates validation errors and can produce a ValidationError when invalid.
type Validator struct {
	errors []*Error
}

// ValidationError bundles multiple validation errors into a single error value.
type ValidationError struct {
	errors []*Error
}

// New creates a new validator
func New() *Validator {
	return &Validator{}
}

// AddError adds a validation error
func (v *Validator) AddError(field, reason string, value any) {
	v.errors = append(v.errors, &Error{Field: field, Value: value, Reason: reason})
}

// IsValid returns true if no errors have been accumulated
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// Errors returns all accumulated validation errors
func (v *Validator) Errors() []*Error {
	return v.errors
}

// Err converts the accumulated validation errors into an error value.
func (v *Validator) Err() error {
	if len(v.errors) == 0 {
		return nil
	}
	copied := make([]*Error, len(v.errors))
	copy(copied, v.errors)
	return ValidationError{errors: copied}
}

// Errors returns the individual validation errors making up the validation failure.
func (e ValidationError) Errors() []*Error {
	return e.errors
}

func (e ValidationError) Error() string {
	if len(e.errors) == 1 {
		return e.errors[0].Error()
	}
	msgs := make([]string, len(e.errors))
	for i, err := range e.errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes every field error so errors.As finds the first *Error.
func (e ValidationError) Unwrap() []error {
	out := make([]error, len(e.errors))
	for i, err := range e.errors {
		out[i] = err
	}
	return out
}

// URL validates a URL string
func (v *Validator) URL(field, value string, allowedSchemes []string) {
	if value == "" {
		v.AddError(field, "URL cannot be empty", value)
		return
	}
	u, err := url.Parse(value)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid URL: %v", err), value)
		return
	}
	if u.Host == "" {
		v.AddError(field, "URL must have a host", value)
		return
	}
	if len(allowedSchemes) == 0 {
		return
	}
	for _, scheme := range allowedSchemes {
		if u.Scheme == scheme {
			return
		}
	}
	v.AddError(field, fmt.Sprintf("unsupported URL scheme %q (allowed: %v)", u.Scheme, allowedSchemes), value)
}

// Range validates that an integer is within a specified range (inclusive)
func (v *Validator) Range(field string, value, minVal, maxVal int) {
	if value < minVal || value > maxVal {
		v.AddError(field, fmt.Sprintf("value must be between %d and %d, got %d", minVal, maxVal, value), value)
	}
}

// NotEmpty validates that a string is not empty or whitespace-only
func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "value cannot be empty", value)
	}
}

// OneOf validates that a value is one of the allowed values
func (v *Validator) OneOf(field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.AddError(field, fmt.Sprintf("value must be one of %v, got %q", allowed, value), value)
}

// Positive validates that a number is positive (> 0)
func (v *Validator) Positive(field string, value int) {
	if value <= 0 {
		v.AddError(field, fmt.Sprintf("value must be positive, got %d", value), value)
	}
}

// PositiveDuration rejects zero and negative durations.
func (v *Validator) PositiveDuration(field string, d time.Duration) {
	if d <= 0 {
		v.AddError(field, fmt.Sprintf("duration must be positive, got %s", d), d)
	}
}

// Matches validates value against re.
func (v *Validator) Matches(field, value string, re *regexp.Regexp) {
	if !re.MatchString(value) {
		v.AddError(field, fmt.Sprintf("value %q does not match %s", value, re.String()), value)
	}
}

// Custom allows custom validation logic
func (v *Validator) Custom(field string, value any, validator func(any) error) {
	if err := validator(value); err != nil {
		v.AddError(field, err.Error(), value)
	}
}

// AbsolutePath requires an absolute path that is already in clean form.
func (v *Validator) AbsolutePath(field, path string) {
	switch {
	case path == "":
		v.AddError(field, "path cannot be empty", path)
	case !filepath.IsAbs(path):
		v.AddError(field, "path must be absolute", path)
	case filepath.Clean(path) != path:
		v.AddError(field, fmt.Sprintf("path is not clean (want %s)", filepath.Clean(path)), path)
	}
}

// WithinRoots requires path to live strictly below one of roots. An empty
// roots list accepts any path.
func (v *Validator) WithinRoots(field, path string, roots []string) {
	if len(roots) == 0 {
		return
	}
	for _, root := range roots {
		if IsWithin(root, path) {
			return
		}
	}
	v.AddError(field, fmt.Sprintf("path is outside the allowed roots %v", roots), path)
}

// IsWithin reports whether path is strictly below root.
func IsWithin(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil || rel == "." {
		return false
	}
	return filepath.IsLocal(rel)
}

// Directory validates a directory path. When mustExist is false a missing
// directory is created.
func (v *Validator) Directory(field, path string, mustExist bool) {
	if path == "" {
		v.AddError(field, "directory path cannot be empty", path)
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			v.AddError(field, fmt.Sprintf("cannot access directory: %v", err), path)
			return
		}
		if mustExist {
			v.AddError(field, "directory does not exist", path)
			return
		}
		if err := os.MkdirAll(path, 0o750); err != nil {
			v.AddError(field, fmt.Sprintf("cannot create directory: %v", err), path)
		}
		return
	}
	if !info.IsDir() {
		v.AddError(field, "path is not a directory", path)
	}
}
