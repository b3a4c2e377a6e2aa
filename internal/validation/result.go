package validation

import "fmt"

// Result collects the issues of one or more checks.
type Result struct {
	Valid    bool    `json:"isValid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// NewResult returns an empty, valid result.
func NewResult() Result {
	return Result{Valid: true, Errors: []Issue{}, Warnings: []Issue{}}
}

func (r *Result) AddError(field string, code Code, format string, args ...any) {
	r.Errors = append(r.Errors, Issue{
		Field:    field,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityError,
	})
	r.Valid = false
}

func (r *Result) AddWarning(field string, code Code, format string, args ...any) {
	r.Warnings = append(r.Warnings, Issue{
		Field:    field,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityWarning,
	})
}

func (r Result) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Issues returns errors followed by warnings.
func (r Result) Issues() []Issue {
	out := make([]Issue, 0, len(r.Errors)+len(r.Warnings))
	out = append(out, r.Errors...)
	return append(out, r.Warnings...)
}

// HasCode reports whether any issue carries code.
func (r Result) HasCode(code Code) bool {
	for _, i := range r.Issues() {
		if i.Code == code {
			return true
		}
	}
	return false
}

// Combine merges results in order; the combination is valid iff none of them has errors.
func Combine(results ...Result) Result {
	out := NewResult()
	for _, r := range results {
		out.Errors = append(out.Errors, r.Errors...)
		out.Warnings = append(out.Warnings, r.Warnings...)
	}
	out.Valid = len(out.Errors) == 0
	return out
}

// Unique drops repeated issues (same field, code and message), keeping the first occurrence.
func (r Result) Unique() Result {
	out := NewResult()
	seen := make(map[Issue]bool)
	for _, i := range r.Errors {
		if !seen[i] {
			seen[i] = true
			out.Errors = append(out.Errors, i)
		}
	}
	for _, i := range r.Warnings {
		if !seen[i] {
			seen[i] = true
			out.Warnings = append(out.Warnings, i)
		}
	}
	out.Valid = len(out.Errors) == 0
	return out
}
