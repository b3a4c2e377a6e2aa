// Package security screens untrusted free-text request fields
package security

import (
	"unicode"

	apperrors "github.com/gmsas95/medicamenta/internal/errors"
)

// Field is one named request value to screen
type Field struct {
	Name  string
	Value string
}

type InputValidator struct {
	MaxSize       int
	MaxRepetition int
}

func NewInputValidator() *InputValidator {
	return &InputValidator{
		MaxSize:       4 * 1024,
		MaxRepetition: 100,
	}
}

// Validate rejects oversized values, null bytes, control characters other than
// newline and tab, and long runs of one repeated rune.
func (v *InputValidator) Validate(f Field) error {
	if v.MaxSize > 0 && len(f.Value) > v.MaxSize {
		return reject(f.Name, "%s exceeds %d bytes", f.Name, v.MaxSize)
	}

	run, last := 0, rune(-1)
	for _, r := range f.Value {
		if r == 0 {
			return reject(f.Name, "null byte in %s", f.Name)
		}
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return reject(f.Name, "control character in %s", f.Name)
		}
		if r == last {
			run++
		} else {
			run, last = 1, r
		}
		if v.MaxRepetition > 0 && run > v.MaxRepetition {
			return reject(f.Name, "excessive repetition in %s", f.Name)
		}
	}
	return nil
}

// ValidateAll returns the first failing field.
func (v *InputValidator) ValidateAll(fields ...Field) error {
	for _, f := range fields {
		if err := v.Validate(f); err != nil {
			return err
		}
	}
	return nil
}

func reject(field, format string, args ...interface{}) error {
	err := apperrors.ErrBadRequest.WithMessage(format, args...)
	err.Field = field
	return err
}
