package enhancer

import (
	"testing"

	"github.com/mark3labs/ramlenhance/internal/tree"
)

func decodeMap(t *testing.T, src string) *tree.Map {
	t.Helper()
	v, err := tree.Decode([]byte(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	m, ok := v.(*tree.Map)
	if !ok {
		t.Fatalf("expected a map, got %T", v)
	}
	return m
}

func jsonOf(t *testing.T, v any) string {
	t.Helper()
	b, err := tree.EncodeJSON(v, false)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return string(b)
}

// at follows a path of map keys and sequence indexes.
func at(t *testing.T, v any, path ...any) any {
	t.Helper()
	for _, p := range path {
		switch k := p.(type) {
		case string:
			m, ok := v.(*tree.Map)
			if !ok {
				t.Fatalf("step %q: expected a map, got %T", k, v)
			}
			v = m.Value(k)
		case int:
			s, ok := v.([]any)
			if !ok || k >= len(s) {
				t.Fatalf("step %d: expected a sequence with index, got %T", k, v)
			}
			v = s[k]
		}
	}
	return v
}
