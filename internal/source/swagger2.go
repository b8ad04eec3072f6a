package source

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"

	"github.com/mark3labs/ramlenhance/internal/tree"
)

var swaggerMethods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true,
}

// convertSwagger2 converts a Swagger 2.0 document to OpenAPI 3. Operations
// kin-openapi cannot convert are rewritten first, see fixBodyParameters.
func convertSwagger2(raw []byte, log *zap.Logger) (*openapi3.T, error) {
	v, err := tree.Decode(raw)
	if err != nil {
		return nil, err
	}
	root, ok := v.(*tree.Map)
	if !ok {
		return nil, fmt.Errorf("swagger document must be a map")
	}
	if fixed := fixBodyParameters(root); len(fixed) > 0 {
		log.Debug("Rewrote body parameters for conversion", zap.Strings("operations", fixed))
	}
	data, err := tree.EncodeJSON(root, false)
	if err != nil {
		return nil, err
	}
	var v2 openapi2.T
	if err := json.Unmarshal(data, &v2); err != nil {
		return nil, err
	}
	return openapi2conv.ToV3(&v2)
}

// fixBodyParameters rewrites non-compliant Swagger 2.0 operations in place
// and returns the "METHOD path" of every operation it touched:
//   - several body parameters are merged into one object body whose
//     properties are the original parameters;
//   - body parameters mixed with formData become formData parameters and the
//     operation consumes multipart/form-data.
func fixBodyParameters(root *tree.Map) []string {
	paths, _ := root.Value("paths").(*tree.Map)
	var fixed []string
	paths.Range(func(path string, iv any) bool {
		item, _ := iv.(*tree.Map)
		item.Range(func(method string, ov any) bool {
			op, ok := ov.(*tree.Map)
			if !ok || !swaggerMethods[strings.ToLower(method)] {
				return true
			}
			params, _ := op.Value("parameters").([]any)
			bodies, hasForm := 0, false
			for _, p := range params {
				switch paramIn(p) {
				case "body":
					bodies++
				case "formdata":
					hasForm = true
				}
			}
			switch {
			case bodies > 0 && hasForm:
				op.Set("parameters", bodiesToFormData(params))
				consumes, _ := op.Value("consumes").([]any)
				if !containsString(consumes, "multipart/form-data") {
					op.Set("consumes", append(consumes, "multipart/form-data"))
				}
			case bodies > 1:
				op.Set("parameters", mergeBodies(params))
			default:
				return true
			}
			fixed = append(fixed, strings.ToUpper(method)+" "+path)
			return true
		})
		return true
	})
	return fixed
}

func paramIn(p any) string {
	m, _ := p.(*tree.Map)
	s, _ := m.Value("in").(string)
	return strings.ToLower(s)
}

func mergeBodies(params []any) []any {
	props := tree.NewMap()
	var required []any
	rest := make([]any, 0, len(params))
	for _, p := range params {
		if paramIn(p) != "body" {
			rest = append(rest, p)
			continue
		}
		pm := p.(*tree.Map)
		name, _ := pm.Value("name").(string)
		if name == "" {
			name = "field"
		}
		schema := paramSchema(pm)
		if schema == nil {
			schema = tree.MapOf("type", "string")
		}
		props.Set(name, schema)
		if req, _ := pm.Value("required").(bool); req {
			required = append(required, name)
		}
	}
	body := tree.MapOf("type", "object", "properties", props)
	if len(required) > 0 {
		body.Set("required", required)
	}
	merged := tree.MapOf("in", "body", "name", "body", "schema", body)
	return append([]any{merged}, rest...)
}

func bodiesToFormData(params []any) []any {
	out := make([]any, 0, len(params))
	for _, p := range params {
		if paramIn(p) != "body" {
			out = append(out, p)
			continue
		}
		pm := p.(*tree.Map)
		name, _ := pm.Value("name").(string)
		if name == "" {
			name = "field"
		}
		form := tree.MapOf("in", "formData", "name", name)
		if desc, ok := pm.Value("description").(string); ok && desc != "" {
			form.Set("description", desc)
		}
		if req, ok := pm.Value("required").(bool); ok {
			form.Set("required", req)
		}
		// formData cannot carry a referenced schema; those degrade to string.
		typ := "string"
		if schema := paramSchema(pm); schema != nil {
			if t, ok := schema.Value("type").(string); ok && t != "" {
				typ = t
			}
			if items, ok := schema.Get("items"); ok {
				form.Set("items", items)
			}
			if f, ok := schema.Value("format").(string); ok && f != "" {
				form.Set("format", f)
			}
		}
		form.Set("type", typ)
		out = append(out, form)
	}
	return out
}

// paramSchema returns the schema of a parameter, synthesizing one from the
// parameter's own type facets when it has none.
func paramSchema(pm *tree.Map) *tree.Map {
	if s, ok := pm.Value("schema").(*tree.Map); ok {
		return s
	}
	t, _ := pm.Value("type").(string)
	if t == "" {
		return nil
	}
	s := tree.MapOf("type", t)
	if items, ok := pm.Value("items").(*tree.Map); ok {
		s.Set("items", items)
	}
	if f, ok := pm.Value("format").(string); ok && f != "" {
		s.Set("format", f)
	}
	return s
}

func containsString(list []any, want string) bool {
	for _, v := range list {
		if s, ok := v.(string); ok && s == want {
			return true
		}
	}
	return false
}
