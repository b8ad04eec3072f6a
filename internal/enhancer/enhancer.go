// Package enhancer normalizes the JSON tree produced by a RAML parser into a
// denormalized form that documentation tooling can render directly: named
// types are expanded and pushed into every reference, declaration maps become
// ordered sequences, and resources and methods carry their full URIs, URI
// parameters and resolved security schemes.
package enhancer

import (
	"context"

	"go.uber.org/zap"

	"github.com/mark3labs/ramlenhance/internal/tree"
)

// Enhance runs the whole pipeline over doc and returns the enhanced root. If
// doc wraps the API in a "specification" key, the wrapped value is enhanced
// and returned. The tree is modified in place.
func Enhance(ctx context.Context, doc any, opts ...Option) (*tree.Map, error) {
	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	log := settings.logger()

	root, ok := doc.(*tree.Map)
	if !ok {
		return nil, &Error{Code: InputError, Message: "document root must be a map, got " + kindOf(doc), Path: "#"}
	}
	if spec, ok := root.Value("specification").(*tree.Map); ok {
		root = spec
	}

	if err := SequencesToObjects(root); err != nil {
		return nil, err
	}

	var types *tree.Map
	if v, ok := root.Get("types"); ok && v != nil {
		types, _ = v.(*tree.Map)
	}
	if types != nil {
		expanded, err := expandTypes(ctx, types, settings)
		if err != nil {
			return nil, err
		}
		types = expanded
		if err := MakeTypesConsistent(types); err != nil {
			return nil, err
		}
		log.Debug("Types are consistent", zap.Int("types", types.Len()))
	}

	root.Delete("types")
	if _, err := MakeConsistent(root, types); err != nil {
		return nil, err
	}
	ObjectsToSequences(root)
	types.Range(func(_ string, decl any) bool {
		ObjectsToSequences(decl)
		return true
	})
	log.Debug("Reshaped declaration collections")

	schemes, _ := root.Value("securitySchemes").(*tree.Map)
	if err := EnrichResources(root, schemes); err != nil {
		return nil, err
	}
	log.Debug("Enriched resources")

	if types != nil {
		root.Set("types", types)
	}
	return root, nil
}
