package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"sync"

	logx "github.com/eflow-agent/server/pkg/logger"
)

// State of a Validator's endpoint table.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

const maxSimilarEndpoints = 3

// Validator checks outbound requests against an endpoint table. The table is
// read-only once ready and only replaced wholesale by Reinitialize.
type Validator struct {
	source Source

	initMu sync.Mutex
	mu     sync.RWMutex
	state  State
	specs  map[string]EndpointSpec
	paths  []string
}

// New builds an uninitialized validator. A nil source means the built-in table.
func New(source Source) *Validator {
	return &Validator{source: source}
}

func (v *Validator) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// Initialize loads the table once. It never fails: when the source is missing
// or broken the built-in table is used and a warning is logged.
func (v *Validator) Initialize(ctx context.Context) {
	v.initMu.Lock()
	defer v.initMu.Unlock()

	if v.State() == StateReady {
		return
	}
	v.load(ctx)
}

// Reinitialize reloads the table from the source and replaces it wholesale.
func (v *Validator) Reinitialize(ctx context.Context) {
	v.initMu.Lock()
	defer v.initMu.Unlock()
	v.load(ctx)
}

func (v *Validator) load(ctx context.Context) {
	v.mu.Lock()
	v.state = StateInitializing
	v.mu.Unlock()

	specs := DefaultEndpoints()
	origin := "defaults"
	if v.source != nil {
		loaded, err := v.source.Load(ctx)
		if err != nil {
			logx.Warn().Err(err).Msg("Endpoint spec source failed; falling back to built-in table")
		} else {
			specs = loaded
			origin = "source"
		}
	}

	table := make(map[string]EndpointSpec, len(specs))
	paths := make([]string, 0, len(specs))
	for _, s := range specs {
		table[s.Path] = s
		paths = append(paths, s.Path)
	}
	sort.Strings(paths)

	v.mu.Lock()
	v.specs = table
	v.paths = paths
	v.state = StateReady
	v.mu.Unlock()

	logx.Debug().Str("origin", origin).Int("endpoints", len(table)).Msg("Endpoint spec table ready")
}

func (v *Validator) ensureReady() {
	if v.State() != StateReady {
		v.Initialize(context.Background())
	}
}

// Endpoint returns the spec for an exact path.
func (v *Validator) Endpoint(path string) (EndpointSpec, bool) {
	v.ensureReady()
	v.mu.RLock()
	defer v.mu.RUnlock()
	s, ok := v.specs[path]
	return s, ok
}

// ValidateEndpoint checks that path exists and is called with its declared method.
func (v *Validator) ValidateEndpoint(path, method string) Result {
	var errs, warnings, suggestions []string

	spec, ok := v.Endpoint(path)
	if !ok {
		errs = append(errs, fmt.Sprintf("unknown endpoint: %s", path))
		if similar := v.similar(path); len(similar) > 0 {
			suggestions = append(suggestions, fmt.Sprintf("did you mean: %s?", strings.Join(similar, ", ")))
		}
		return newResult(errs, warnings, suggestions)
	}

	if !strings.EqualFold(spec.Method, method) {
		errs = append(errs, fmt.Sprintf("method mismatch: endpoint expects %s, got %s", spec.Method, strings.ToUpper(method)))
	}
	if spec.Deprecated {
		warnings = append(warnings, fmt.Sprintf("endpoint %s is deprecated", path))
		if spec.Replacement != "" {
			suggestions = append(suggestions, fmt.Sprintf("use replacement endpoint: %s", spec.Replacement))
		}
	}
	return newResult(errs, warnings, suggestions)
}

// ValidatePayload checks required parameters, declared types and the columns shape.
func (v *Validator) ValidatePayload(path string, payload map[string]any) Result {
	var errs, warnings, suggestions []string

	spec, ok := v.Endpoint(path)
	if !ok {
		errs = append(errs, fmt.Sprintf("cannot validate payload for unknown endpoint: %s", path))
		return newResult(errs, warnings, suggestions)
	}

	for _, param := range spec.Required {
		if _, present := payload[param]; !present {
			errs = append(errs, fmt.Sprintf("missing required parameter: %s", param))
		}
	}

	params := make([]string, 0, len(payload))
	for k := range payload {
		params = append(params, k)
	}
	sort.Strings(params)

	for _, param := range params {
		value := payload[param]
		if expected, typed := spec.Types[param]; typed && !matchesType(value, expected) {
			errs = append(errs, fmt.Sprintf("parameter %q has wrong type: expected %s, got %T", param, expected, value))
		}
		if !spec.known(param) {
			warnings = append(warnings, fmt.Sprintf("unknown parameter: %s (may be ignored by API)", param))
		}
	}

	if columns, present := payload["columns"]; present {
		colErrs := checkColumns(columns, spec.Types["columns"] == "")
		if len(colErrs) > 0 {
			errs = append(errs, colErrs...)
			suggestions = append(suggestions, `use format: [{"column": "offer"}, {"column": "affiliate"}]`)
		}
	}

	return newResult(errs, warnings, suggestions)
}

// Validate runs both endpoint and payload checks.
func (v *Validator) Validate(path, method string, payload map[string]any) Result {
	res := v.ValidateEndpoint(path, method)
	if payload == nil {
		return res
	}
	if _, ok := v.Endpoint(path); !ok {
		return res
	}
	return res.Merge(v.ValidatePayload(path, payload))
}

// ValidateAll checks every table entry against its own declared method. It is a
// startup sanity pass: a well-formed table yields only valid results.
func (v *Validator) ValidateAll() map[string]Result {
	v.ensureReady()

	v.mu.RLock()
	specs := make([]EndpointSpec, 0, len(v.paths))
	for _, p := range v.paths {
		specs = append(specs, v.specs[p])
	}
	v.mu.RUnlock()

	out := make(map[string]Result, len(specs))
	for _, s := range specs {
		res := v.ValidateEndpoint(s.Path, s.Method)
		for param := range s.Types {
			if !s.known(param) {
				res = res.Merge(newResult([]string{fmt.Sprintf("typed parameter %s is neither required nor optional", param)}, nil, nil))
			}
		}
		if s.Deprecated && s.Replacement != "" {
			if _, ok := v.Endpoint(s.Replacement); !ok {
				res = res.Merge(newResult([]string{fmt.Sprintf("replacement endpoint %s is not in the table", s.Replacement)}, nil, nil))
			}
		}
		out[s.Path] = res
	}
	return out
}

// SuggestEndpoint maps a free-text operation description to a table path.
func (v *Validator) SuggestEndpoint(operation string) (string, bool) {
	op := strings.ToLower(operation)

	var path string
	switch {
	case strings.Contains(op, "affiliate") && strings.Contains(op, "list"):
		path = PathAffiliates
	case strings.Contains(op, "offer") && strings.Contains(op, "list"):
		path = PathOffers
	case strings.Contains(op, "conversion") && strings.Contains(op, "status"):
		path = PathConversionStatuses
	case strings.Contains(op, "export") || strings.Contains(op, "csv"):
		path = PathEntityExport
	case strings.Contains(op, "conversion") && strings.Contains(op, "view"):
		path = PathConversions
	case strings.Contains(op, "report") || strings.Contains(op, "entity"):
		path = PathEntityReport
	default:
		return "", false
	}

	if _, ok := v.Endpoint(path); !ok {
		return "", false
	}
	return path, true
}

// similar returns table paths sharing a trailing segment with path.
func (v *Validator) similar(path string) []string {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil
	}
	last := parts[len(parts)-1]

	v.mu.RLock()
	defer v.mu.RUnlock()

	var out []string
	for _, known := range v.paths {
		knownParts := splitPath(known)
		if len(knownParts) == 0 {
			continue
		}
		if contains(knownParts, last) || contains(parts, knownParts[len(knownParts)-1]) {
			out = append(out, known)
			if len(out) == maxSimilarEndpoints {
				break
			}
		}
	}
	return out
}

func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// checkColumns requires an array of objects each carrying a "column" key.
// Non-array values are only reported here when no declared type already covers them.
func checkColumns(value any, reportShape bool) []string {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		if reportShape {
			return []string{"'columns' must be an array"}
		}
		return nil
	}

	var errs []string
	for i := 0; i < rv.Len(); i++ {
		if !isColumnObject(rv.Index(i)) {
			errs = append(errs, fmt.Sprintf("column %d must be an object with 'column' key, not a plain string", i))
		}
	}
	return errs
}

func isColumnObject(v reflect.Value) bool {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Map || v.Type().Key().Kind() != reflect.String {
		return false
	}
	return v.MapIndex(reflect.ValueOf("column").Convert(v.Type().Key())).IsValid()
}

func matchesType(value any, expected string) bool {
	switch expected {
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeInteger:
		return isInteger(value)
	case TypeNumber:
		return isNumber(value)
	case TypeArray:
		rv := reflect.ValueOf(value)
		return rv.IsValid() && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array)
	case TypeObject:
		rv := reflect.ValueOf(value)
		return rv.IsValid() && rv.Kind() == reflect.Map
	default:
		return true
	}
}

func isInteger(value any) bool {
	switch n := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float32:
		return float64(n) == math.Trunc(float64(n))
	case float64:
		return n == math.Trunc(n) && !math.IsInf(n, 0)
	case json.Number:
		_, err := n.Int64()
		return err == nil
	default:
		return false
	}
}

func isNumber(value any) bool {
	switch n := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	case json.Number:
		_, err := n.Float64()
		return err == nil
	default:
		return false
	}
}
