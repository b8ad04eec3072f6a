package enhancer

import (
	"math"
	"sort"
	"strconv"

	"github.com/mark3labs/ramlenhance/internal/tree"
)

// secure defaults queryParameters, headers and securedBy on obj and replaces
// every securedBy reference found in the scheme registry with a copy of the
// scheme. When anything was resolved, the schemes' describedBy parameters are
// appended to obj and its responses are merged and ordered by status code.
// It must run at most once per object.
func (e *enricher) secure(obj *tree.Map, path string) error {
	for _, k := range []string{"queryParameters", "headers", "securedBy"} {
		if v, ok := obj.Get(k); !ok || v == nil {
			obj.Set(k, []any{})
		}
	}
	securedBy, err := sequenceAt(obj, "securedBy", path)
	if err != nil {
		return err
	}
	if e.schemes.Len() == 0 || len(securedBy) == 0 {
		return nil
	}

	var resolved []*tree.Map
	for i, item := range securedBy {
		scheme := e.resolve(item)
		if scheme == nil {
			continue
		}
		securedBy[i] = scheme
		resolved = append(resolved, scheme)
	}
	if len(resolved) == 0 {
		return nil
	}
	return applySchemes(obj, path, resolved)
}

// resolve returns a fresh copy of the scheme item refers to, or nil when item
// is not a known reference. A {name: settings} reference gets the scheme's
// settings overridden by the caller's.
func (e *enricher) resolve(item any) *tree.Map {
	switch ref := item.(type) {
	case string:
		decl, ok := e.schemes.Value(ref).(*tree.Map)
		if !ok {
			return nil
		}
		scheme, _ := tree.Clone(decl).(*tree.Map)
		return scheme
	case *tree.Map:
		if ref.Len() == 0 {
			return nil
		}
		name := ref.Keys()[0]
		decl, ok := e.schemes.Value(name).(*tree.Map)
		if !ok {
			return nil
		}
		scheme, _ := tree.Clone(decl).(*tree.Map)
		settings := tree.NewMap()
		if own, ok := scheme.Value("settings").(*tree.Map); ok {
			settings.Assign(own)
		}
		if params, ok := tree.Clone(ref.Value(name)).(*tree.Map); ok {
			settings.Assign(params)
		}
		scheme.Set("settings", settings)
		return scheme
	}
	return nil
}

func applySchemes(obj *tree.Map, path string, schemes []*tree.Map) error {
	query, err := sequenceAt(obj, "queryParameters", path)
	if err != nil {
		return err
	}
	headers, err := sequenceAt(obj, "headers", path)
	if err != nil {
		return err
	}
	own, err := sequenceAt(obj, "responses", path)
	if err != nil {
		return err
	}

	var responses []any
	for _, scheme := range schemes {
		described, ok := scheme.Value("describedBy").(*tree.Map)
		if !ok {
			continue
		}
		query = append(query, describedSequence(described, "queryParameters")...)
		headers = append(headers, describedSequence(described, "headers")...)
		responses = append(responses, describedSequence(described, "responses")...)
	}
	responses = append(responses, own...)
	sortResponses(responses)

	obj.Set("queryParameters", query)
	obj.Set("headers", headers)
	obj.Set("responses", responses)
	return nil
}

// describedSequence returns clones of the entries of described[key] so the
// object never shares nodes with its resolved scheme.
func describedSequence(described *tree.Map, key string) []any {
	seq, err := ToSequence(described.Value(key))
	if err != nil {
		return nil
	}
	return cloneSequence(seq)
}

// sortResponses orders responses by numeric status code, keeping declaration
// order among equal codes. Entries without a numeric code go last.
func sortResponses(responses []any) {
	sort.SliceStable(responses, func(i, j int) bool {
		return statusCode(responses[i]) < statusCode(responses[j])
	})
}

func statusCode(v any) float64 {
	m, ok := v.(*tree.Map)
	if !ok {
		return math.Inf(1)
	}
	code, ok := m.Get("code")
	if !ok {
		code = m.Value("key")
	}
	switch c := code.(type) {
	case int:
		return float64(c)
	case int64:
		return float64(c)
	case uint64:
		return float64(c)
	case float64:
		return c
	case string:
		if f, err := strconv.ParseFloat(c, 64); err == nil {
			return f
		}
	}
	return math.Inf(1)
}
