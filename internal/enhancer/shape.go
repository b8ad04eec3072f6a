package enhancer

import (
	"github.com/mark3labs/ramlenhance/internal/tree"
)

// Properties holding declaration collections anywhere in the tree. They are
// rewritten from keyed maps into ordered sequences.
var sequenceProperties = map[string]bool{
	"responses":         true,
	"body":              true,
	"queryParameters":   true,
	"headers":           true,
	"properties":        true,
	"baseUriParameters": true,
	"annotations":       true,
	"uriParameters":     true,
}

// Root-level declaration registries. They are rewritten into keyed maps.
var mapProperties = []string{"types", "traits", "resourceTypes", "annotationTypes", "securitySchemes"}

// ToSequence turns a keyed map into the sequence of its values, in key order.
// Structured values are tagged with their original key under "key". A
// sequence is returned unchanged.
//
// EXAMPLE: {foo: {name: "foo!"}, bar: {name: "bar"}}
// becomes [{name: "foo!", key: "foo"}, {name: "bar", key: "bar"}]
func ToSequence(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case *tree.Map:
		out := make([]any, 0, t.Len())
		t.Range(func(k string, val any) bool {
			if m, ok := val.(*tree.Map); ok {
				m.Set("key", k)
			}
			out = append(out, val)
			return true
		})
		return out, nil
	default:
		return nil, structuralf("", "expected a map or a sequence, got %s", kindOf(v))
	}
}

// ToMap folds a sequence of declarations into one keyed map; later entries
// overwrite earlier ones. Elements are either wrappers ({foo: {...}}) whose
// entries are copied in, or tagged values ({key: "foo", ...}) stored under
// their key. A map is returned unchanged.
func ToMap(v any) (*tree.Map, error) {
	switch t := v.(type) {
	case *tree.Map:
		return t, nil
	case []any:
		out := tree.NewMap()
		for i, e := range t {
			m, ok := e.(*tree.Map)
			if !ok {
				return nil, structuralf(tree.Pointer("", i), "expected a declaration map, got %s", kindOf(e))
			}
			if key, ok := m.Value("key").(string); ok {
				out.Set(key, m)
				continue
			}
			out.Assign(m)
		}
		return out, nil
	default:
		return nil, structuralf("", "expected a map or a sequence, got %s", kindOf(v))
	}
}

// ObjectsToSequences applies ToSequence to every sequence property found
// anywhere under v. It mutates v in place and returns it. Scalars under a
// sequence property are payload (for example an example value) and are left
// alone.
func ObjectsToSequences(v any) any {
	switch t := v.(type) {
	case *tree.Map:
		t.Range(func(k string, val any) bool {
			if sequenceProperties[k] {
				if m, ok := val.(*tree.Map); ok {
					seq, _ := ToSequence(m)
					t.Set(k, seq)
					val = seq
				}
			}
			ObjectsToSequences(val)
			return true
		})
	case []any:
		for _, e := range t {
			ObjectsToSequences(e)
		}
	}
	return v
}

// SequencesToObjects rewrites the root declaration registries into keyed
// maps. It only looks at root and does not recurse.
func SequencesToObjects(root *tree.Map) error {
	for _, key := range mapProperties {
		v, ok := root.Get(key)
		if !ok || v == nil {
			continue
		}
		m, err := ToMap(v)
		if err != nil {
			return rebase(err, tree.Pointer("#", key))
		}
		root.Set(key, m)
	}
	return nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case *tree.Map:
		return "map"
	case []any:
		return "sequence"
	case string:
		return "string"
	case bool:
		return "boolean"
	default:
		return "number"
	}
}

// rebase prefixes the path of a structural error with base.
func rebase(err error, base string) error {
	if e, ok := err.(*Error); ok {
		cp := *e
		cp.Path = base + e.Path
		return &cp
	}
	return err
}
