package validator

import (
	"errors"
	"strings"

	errx "github.com/eflow-agent/server/internal/core/error"
)

// Result is the outcome of a validation call.
type Result struct {
	Valid       bool
	Errors      []string
	Warnings    []string
	Suggestions []string
}

func newResult(errs, warnings, suggestions []string) Result {
	return Result{
		Valid:       len(errs) == 0,
		Errors:      errs,
		Warnings:    warnings,
		Suggestions: suggestions,
	}
}

// Merge combines two results; the merged result is valid only if both are.
func (r Result) Merge(other Result) Result {
	return newResult(
		append(append([]string(nil), r.Errors...), other.Errors...),
		append(append([]string(nil), r.Warnings...), other.Warnings...),
		append(append([]string(nil), r.Suggestions...), other.Suggestions...),
	)
}

// Err returns nil for a valid result, otherwise an error matching errx.ErrValidation.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	var b strings.Builder
	b.WriteString(strings.Join(r.Errors, "; "))
	if len(r.Suggestions) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(r.Suggestions, "; "))
		b.WriteString(")")
	}
	return errx.WrapValidation(errors.New(b.String()))
}
