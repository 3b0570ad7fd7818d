package resolver

import (
	"context"
	"fmt"
	"strings"

	errx "github.com/eflow-agent/server/internal/core/error"
	logx "github.com/eflow-agent/server/pkg/logger"
)

// bundleField maps a name-typed filter key to its identifier key.
type bundleField struct {
	nameKey string
	idKey   string
	kind    Kind
}

// Order matters: country_name is tried before country.
var bundleFields = []bundleField{
	{nameKey: "offer_name", idKey: "offer_id", kind: KindOffer},
	{nameKey: "affiliate_name", idKey: "affiliate_id", kind: KindAffiliate},
	{nameKey: "country_name", idKey: "country_code", kind: KindCountry},
	{nameKey: "country", idKey: "country_code", kind: KindCountry},
}

// FieldFailure is one filter value that could not be resolved.
type FieldFailure struct {
	Key         string
	Input       any
	Suggestions []Suggestion
}

// BundleError aggregates every unresolved value of a filter bundle.
// It matches errx.ErrUnresolved.
type BundleError struct {
	Failures []FieldFailure
}

func (e *BundleError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "could not resolve %d filter value(s)", len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "\n%s %q not found", f.Key, termOf(f.Input))
		if len(f.Suggestions) == 0 {
			continue
		}
		b.WriteString("\n  did you mean:")
		for _, s := range f.Suggestions {
			fmt.Fprintf(&b, "\n    - %s (id %s, %.1f%% match)", s.Name, s.ID, s.Score)
		}
	}
	return b.String()
}

func (e *BundleError) Unwrap() error {
	return errx.ErrUnresolved
}

// ResolveFilterBundle returns a copy of filters with name keys replaced by
// identifier keys. Every field is attempted before a *BundleError is returned.
// An identifier key already present wins over its name key, which is dropped.
// Fetch failures are returned immediately.
func (r *Resolver) ResolveFilterBundle(ctx context.Context, filters map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(filters))
	for k, v := range filters {
		out[k] = v
	}

	var failures []FieldFailure
	for _, f := range bundleFields {
		value, present := out[f.nameKey]
		if !present {
			continue
		}
		delete(out, f.nameKey)

		if _, has := out[f.idKey]; has {
			logx.Debug().Str("key", f.nameKey).Str("id_key", f.idKey).Msg("Identifier already present; dropping name filter")
			continue
		}
		if NormalizeTerm(termOf(value)) == "" {
			continue
		}

		res, err := r.ResolveWithSuggestions(ctx, f.kind, value)
		if err != nil {
			return nil, err
		}
		if !res.Found() {
			failures = append(failures, FieldFailure{Key: f.nameKey, Input: value, Suggestions: res.Suggestions})
			continue
		}
		out[f.idKey] = res.Value()
	}

	if len(failures) > 0 {
		return nil, &BundleError{Failures: failures}
	}
	return out, nil
}
