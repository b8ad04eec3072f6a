package enhancer

import (
	"github.com/mark3labs/ramlenhance/internal/tree"
)

// Fields a node keeps (or merges) when a referenced type is merged into it.
var ownFields = []string{"examples", "example", "properties", "items", "default", "description", "enum"}

// Fields naming the position of a node rather than its type. They survive a
// merge. displayName is deliberately not in this list: bodies otherwise keep
// media-type names like "application/json".
var identityFields = []string{"key", "name"}

// Example and value payloads are data, not declarations, and are not walked.
var payloadFields = map[string]bool{
	"example":           true,
	"examples":          true,
	"structuredExample": true,
	"default":           true,
	"enum":              true,
}

// Keyed collections inside a node, plus the root registries.
var collectionFields = func() map[string]bool {
	out := make(map[string]bool, len(sequenceProperties)+len(mapProperties))
	for k := range sequenceProperties {
		out[k] = true
	}
	for _, k := range mapProperties {
		out[k] = true
	}
	return out
}()

// activeSet holds the type names merged on the current path. It is copied on
// extension so siblings never see each other's entries.
type activeSet map[string]bool

func (s activeSet) with(names []string) activeSet {
	if len(names) == 0 {
		return s
	}
	out := make(activeSet, len(s)+len(names))
	for k := range s {
		out[k] = true
	}
	for _, n := range names {
		out[n] = true
	}
	return out
}

type merger struct {
	registry *tree.Map
}

// MakeConsistent pushes the type declarations of registry into every node of
// v that references them by "type" or "items", normalizes examples, and
// returns v. A reference to a type already being merged further up the path
// is left as a bare name so recursive types terminate.
func MakeConsistent(v any, registry *tree.Map) (any, error) {
	m := &merger{registry: registry}
	if err := m.walk(v, "#", nil); err != nil {
		return nil, err
	}
	return v, nil
}

// MakeTypesConsistent runs MakeConsistent over every entry of types. Lookups
// go to a snapshot taken up front so the result does not depend on entry
// order, and each entry starts with its own name on the active path. Chains
// of references (A to B to C) are followed through the snapshot.
func MakeTypesConsistent(types *tree.Map) error {
	if types.Len() == 0 {
		return nil
	}
	snapshot, _ := tree.Clone(types).(*tree.Map)
	m := &merger{registry: snapshot}
	var err error
	types.Range(func(name string, entry any) bool {
		err = m.walk(entry, tree.Pointer("#/types", name), activeSet{name: true})
		return err == nil
	})
	return err
}

func (m *merger) walk(v any, path string, active activeSet) error {
	switch t := v.(type) {
	case []any:
		for i, e := range t {
			if err := m.walk(e, tree.Pointer(path, i), active); err != nil {
				return err
			}
		}
	case *tree.Map:
		entered, err := m.apply(t, path, active)
		if err != nil {
			return err
		}
		next := active.with(entered)
		var werr error
		t.Range(func(k string, val any) bool {
			switch {
			case payloadFields[k]:
			case collectionFields[k]:
				werr = m.walkCollection(val, tree.Pointer(path, k), next)
			default:
				werr = m.walk(val, tree.Pointer(path, k), next)
			}
			return werr == nil
		})
		return werr
	}
	return nil
}

// walkCollection walks the members of a declaration collection. A keyed map
// is a container: its keys are user-chosen names, so only its values are
// nodes.
func (m *merger) walkCollection(v any, path string, active activeSet) error {
	c, ok := v.(*tree.Map)
	if !ok {
		return m.walk(v, path, active)
	}
	var err error
	c.Range(func(k string, val any) bool {
		err = m.walk(val, tree.Pointer(path, k), active)
		return err == nil
	})
	return err
}

// apply merges the node's own references and returns the type names it
// entered.
func (m *merger) apply(node *tree.Map, path string, active activeSet) ([]string, error) {
	var entered []string
	blocked := func(name string) bool {
		if active[name] {
			return true
		}
		for _, e := range entered {
			if e == name {
				return true
			}
		}
		return false
	}

	// A merged declaration may itself name another type; follow the chain.
	for {
		tv, ok := node.Get("type")
		if !ok || tv == nil {
			break
		}
		name, err := primaryType(node, tv, tree.Pointer(path, "type"))
		if err != nil {
			return nil, err
		}
		if name == "" || blocked(name) {
			break
		}
		decl, ok := m.registry.Value(name).(*tree.Map)
		if !ok {
			break
		}
		inherit(node, decl)
		entered = append(entered, name)
	}

	if ref, ok := node.Value("items").(string); ok && !blocked(ref) {
		if decl, ok := m.registry.Value(ref).(*tree.Map); ok {
			node.Set("items", tree.Clone(decl))
			entered = append(entered, ref)
		}
	}

	normalizeExamples(node)
	return entered, nil
}

// primaryType collapses a type list to its first entry and returns the name to
// look up, or "" when the type is inline.
func primaryType(node *tree.Map, tv any, path string) (string, error) {
	switch t := tv.(type) {
	case string:
		return t, nil
	case []any:
		if len(t) == 0 {
			return "", nil
		}
		node.Set("type", t[0])
		name, _ := t[0].(string)
		return name, nil
	default:
		return "", structuralf(path, "type must be a string or a sequence of strings, got %s", kindOf(tv))
	}
}

// inherit overwrites node with a copy of decl, then restores what the node
// declared itself.
func inherit(node, decl *tree.Map) {
	own := make(map[string]any, len(ownFields)+len(identityFields))
	for _, k := range append(append([]string(nil), ownFields...), identityFields...) {
		if v, ok := node.Get(k); ok {
			own[k] = v
		}
	}
	ownExamples := exampleValues(node)

	base, _ := tree.Clone(decl).(*tree.Map)
	inheritedExamples := exampleValues(base)
	node.Assign(base)

	for _, k := range identityFields {
		if v, ok := own[k]; ok {
			node.Set(k, v)
		}
	}

	switch {
	case len(ownExamples) > 0 && len(inheritedExamples) > 0:
		node.Set("examples", append(ownExamples, inheritedExamples...))
		node.Delete("example")
	case len(ownExamples) > 0:
		for _, k := range []string{"examples", "example"} {
			if v, ok := own[k]; ok {
				node.Set(k, v)
			}
		}
	}

	for _, k := range []string{"properties", "items"} {
		v, ok := own[k]
		if !ok {
			continue
		}
		if inherited, ok := base.Get(k); ok {
			node.Set(k, overlay(inherited, v))
		} else {
			node.Set(k, v)
		}
	}

	for _, k := range []string{"default", "description", "enum"} {
		if v, ok := own[k]; ok {
			node.Set(k, v)
		}
	}
}

// overlay merges own onto inherited, own winning per key. Maps merge by key,
// sequences by the "key" or "name" of their elements. Anything else is
// replaced by own.
func overlay(inherited, own any) any {
	switch in := inherited.(type) {
	case *tree.Map:
		ow, ok := own.(*tree.Map)
		if !ok {
			return own
		}
		in.Assign(ow)
		return in
	case []any:
		ow, ok := own.([]any)
		if !ok {
			return own
		}
		out := append([]any(nil), in...)
		index := make(map[string]int, len(out))
		for i, e := range out {
			if id := identity(e); id != "" {
				index[id] = i
			}
		}
		for _, e := range ow {
			id := identity(e)
			if i, ok := index[id]; ok && id != "" {
				out[i] = e
				continue
			}
			if id != "" {
				index[id] = len(out)
			}
			out = append(out, e)
		}
		return out
	default:
		return own
	}
}

func identity(v any) string {
	m, ok := v.(*tree.Map)
	if !ok {
		return ""
	}
	for _, k := range identityFields {
		if s, ok := m.Value(k).(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// exampleValues lists the examples a node declares: the entries of "examples"
// followed by the singular "example".
func exampleValues(node *tree.Map) []any {
	var out []any
	switch ex := node.Value("examples").(type) {
	case []any:
		out = append(out, ex...)
	case *tree.Map:
		ex.Range(func(_ string, v any) bool {
			out = append(out, v)
			return true
		})
	}
	if v, ok := node.Get("example"); ok && v != nil {
		out = append(out, v)
	}
	return out
}

func normalizeExamples(node *tree.Map) {
	if ex, ok := node.Value("examples").([]any); ok {
		for i, e := range ex {
			if w, ok := e.(*tree.Map); ok {
				if v, ok := w.Get("value"); ok {
					ex[i] = v
				}
			}
		}
	}

	se, ok := node.Get("structuredExample")
	if !ok {
		return
	}
	ex, _ := node.Value("examples").([]any)
	if ex == nil {
		ex = []any{}
	}
	if w, ok := se.(*tree.Map); ok {
		if v, ok := w.Get("value"); ok {
			ex = append(ex, v)
		}
	}
	node.Set("examples", ex)
	node.Delete("example")
	node.Delete("structuredExample")
}
