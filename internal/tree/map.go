package tree

// Map is an insertion-ordered string-keyed map. It is the map-like variant of a
// parsed node; sequences are []any and everything else is a scalar.
type Map struct {
	keys   []string
	values map[string]any
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{values: make(map[string]any)}
}

// MapOf builds a Map from alternating key/value pairs. It panics on an odd
// argument count or a non-string key and is meant for literals in tests and
// converters.
func MapOf(kv ...any) *Map {
	if len(kv)%2 != 0 {
		panic("tree: MapOf needs key/value pairs")
	}
	m := NewMap()
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			panic("tree: MapOf key must be a string")
		}
		m.Set(k, kv[i+1])
	}
	return m
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns a copy of the keys in order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

func (m *Map) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Value returns the value stored under key, or nil.
func (m *Map) Value(key string) any {
	v, _ := m.Get(key)
	return v
}

func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stores v under key. An existing key keeps its position.
func (m *Map) Set(key string, v any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

func (m *Map) Delete(key string) {
	if m == nil {
		return
	}
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Range calls fn for every entry in order until fn returns false. The key set
// is snapshotted first, so fn may Set or Delete entries of m.
func (m *Map) Range(fn func(key string, v any) bool) {
	if m == nil {
		return
	}
	for _, k := range m.Keys() {
		v, ok := m.values[k]
		if !ok {
			continue
		}
		if !fn(k, v) {
			return
		}
	}
}

// Assign copies every entry of src onto m, src wins. Values are not cloned.
func (m *Map) Assign(src *Map) {
	src.Range(func(k string, v any) bool {
		m.Set(k, v)
		return true
	})
}

// String returns the compact JSON form of m.
func (m *Map) String() string {
	b, err := EncodeJSON(m, false)
	if err != nil {
		return "<invalid: " + err.Error() + ">"
	}
	return string(b)
}
