package enhancer

import (
	"strings"

	"github.com/mark3labs/ramlenhance/internal/tree"
)

type enricher struct {
	schemes *tree.Map
	baseURI string
}

// EnrichResources walks root.resources top-down and annotates every resource
// and method with parentUrl, allUriParameters and absoluteUri. securedBy
// references found in schemes are replaced by resolved copies. Each object
// is visited exactly once.
func EnrichResources(root *tree.Map, schemes *tree.Map) error {
	e := &enricher{schemes: schemes}
	e.baseURI, _ = root.Value("baseUri").(string)
	return e.walk(root, "#", "", nil)
}

func (e *enricher) walk(parent *tree.Map, path, parentURL string, inherited []any) error {
	rv, ok := parent.Get("resources")
	if !ok || rv == nil {
		return nil
	}
	resources, ok := rv.([]any)
	if !ok {
		return structuralf(tree.Pointer(path, "resources"), "resources must be a sequence, got %s", kindOf(rv))
	}

	base, err := sequenceAt(parent, "baseUriParameters", path)
	if err != nil {
		return err
	}

	for i, item := range resources {
		rpath := tree.Pointer(tree.Pointer(path, "resources"), i)
		resource, ok := item.(*tree.Map)
		if !ok {
			return structuralf(rpath, "resource must be a map, got %s", kindOf(item))
		}
		own, err := sequenceAt(resource, "uriParameters", rpath)
		if err != nil {
			return err
		}

		all := make([]any, 0, len(base)+len(inherited)+len(own))
		all = append(all, base...)
		all = append(all, inherited...)
		all = append(all, own...)

		relative, _ := resource.Value("relativeUri").(string)
		resource.Set("parentUrl", parentURL)
		resource.Set("allUriParameters", cloneSequence(all))
		if _, ok := resource.Get("absoluteUri"); !ok {
			resource.Set("absoluteUri", strings.TrimRight(e.baseURI, "/")+parentURL+relative)
		}

		if err := e.methods(resource, rpath, all); err != nil {
			return err
		}
		if err := e.secure(resource, rpath); err != nil {
			return err
		}
		if err := e.walk(resource, rpath, parentURL+relative, all); err != nil {
			return err
		}
	}
	return nil
}

func (e *enricher) methods(resource *tree.Map, rpath string, params []any) error {
	mv, ok := resource.Get("methods")
	if !ok || mv == nil {
		return nil
	}
	methods, ok := mv.([]any)
	if !ok {
		return structuralf(tree.Pointer(rpath, "methods"), "methods must be a sequence, got %s", kindOf(mv))
	}
	absolute := resource.Value("absoluteUri")
	for j, item := range methods {
		mpath := tree.Pointer(tree.Pointer(rpath, "methods"), j)
		method, ok := item.(*tree.Map)
		if !ok {
			return structuralf(mpath, "method must be a map, got %s", kindOf(item))
		}
		method.Set("allUriParameters", cloneSequence(params))
		method.Set("absoluteUri", absolute)
		if err := e.secure(method, mpath); err != nil {
			return err
		}
	}
	return nil
}

// sequenceAt returns node[key] as a sequence. Absent and null values yield nil.
func sequenceAt(node *tree.Map, key, path string) ([]any, error) {
	v, ok := node.Get(key)
	if !ok || v == nil {
		return nil, nil
	}
	seq, ok := v.([]any)
	if !ok {
		return nil, structuralf(tree.Pointer(path, key), "%s must be a sequence, got %s", key, kindOf(v))
	}
	return seq, nil
}

func cloneSequence(seq []any) []any {
	out := make([]any, len(seq))
	for i, v := range seq {
		out[i] = tree.Clone(v)
	}
	return out
}
