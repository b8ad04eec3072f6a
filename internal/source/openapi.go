package source

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/mark3labs/ramlenhance/internal/tree"
)

const schemaRefPrefix = "#/components/schemas/"

// FromOpenAPI converts an OpenAPI 3 document into the raw RAML JSON shape a
// RAML parser produces: declaration registries as sequences of single-key
// maps, nested collections as keyed maps, resources nested by path prefix.
// Component schema references become bare type names. Map iteration is
// sorted so the output is deterministic.
func FromOpenAPI(doc *openapi3.T) *tree.Map {
	c := &converter{doc: doc, seen: make(map[*openapi3.Schema]bool)}
	return c.document()
}

type converter struct {
	doc     *openapi3.T
	baseURI string
	seen    map[*openapi3.Schema]bool
}

func (c *converter) document() *tree.Map {
	root := tree.NewMap()
	if info := c.doc.Info; info != nil {
		setString(root, "title", info.Title)
		setString(root, "version", info.Version)
		setString(root, "description", info.Description)
	}
	if len(c.doc.Servers) > 0 && c.doc.Servers[0] != nil {
		srv := c.doc.Servers[0]
		c.baseURI = strings.TrimSpace(srv.URL)
		setString(root, "baseUri", c.baseURI)
		if u, err := url.Parse(c.baseURI); err == nil && u.Scheme != "" {
			root.Set("protocols", []any{strings.ToUpper(u.Scheme)})
		}
		if params := serverVariables(srv); params.Len() > 0 {
			root.Set("baseUriParameters", params)
		}
	}
	if len(c.doc.Security) > 0 {
		root.Set("securedBy", securedBy(c.doc.Security))
	}
	if types := c.types(); len(types) > 0 {
		root.Set("types", types)
	}
	if schemes := c.securitySchemes(); len(schemes) > 0 {
		root.Set("securitySchemes", schemes)
	}
	if resources := c.resources(); len(resources) > 0 {
		root.Set("resources", resources)
	}
	return root
}

func (c *converter) types() []any {
	if c.doc.Components == nil {
		return nil
	}
	schemas := c.doc.Components.Schemas
	out := make([]any, 0, len(schemas))
	for _, name := range sortedKeys(schemas) {
		decl := tree.MapOf("name", name, "displayName", name)
		decl.Assign(c.typeDecl(schemas[name]))
		out = append(out, tree.MapOf(name, decl))
	}
	return out
}

// typeDecl converts a schema into a RAML type declaration. A component
// reference becomes a bare type name.
func (c *converter) typeDecl(ref *openapi3.SchemaRef) *tree.Map {
	decl := tree.NewMap()
	if ref == nil {
		decl.Set("type", []any{"any"})
		return decl
	}
	if name, ok := schemaName(ref.Ref); ok {
		decl.Set("type", []any{name})
		return decl
	}
	s := ref.Value
	if s == nil || c.seen[s] {
		decl.Set("type", []any{"any"})
		return decl
	}
	c.seen[s] = true
	defer delete(c.seen, s)

	props := tree.NewMap()
	required := append([]string(nil), s.Required...)
	switch {
	case len(s.AllOf) > 0:
		var parents []any
		for _, member := range s.AllOf {
			if name, ok := schemaName(member.Ref); ok {
				parents = append(parents, name)
				continue
			}
			if member.Value == nil {
				continue
			}
			c.addProperties(props, member.Value.Properties)
			required = append(required, member.Value.Required...)
			if s.Description == "" && member.Value.Description != "" {
				setString(decl, "description", member.Value.Description)
			}
		}
		if len(parents) == 0 {
			parents = []any{"object"}
		}
		decl.Set("type", parents)
	case len(s.OneOf) > 0 || len(s.AnyOf) > 0:
		members := append(append(openapi3.SchemaRefs(nil), s.OneOf...), s.AnyOf...)
		names := make([]string, 0, len(members))
		for _, m := range members {
			names = append(names, c.memberName(m))
		}
		decl.Set("type", []any{strings.Join(names, " | ")})
	default:
		decl.Set("type", []any{ramlType(s)})
	}

	setString(decl, "description", s.Description)
	if s.Type == "integer" || s.Type == "number" {
		setString(decl, "format", s.Format)
	}
	setString(decl, "pattern", s.Pattern)
	if s.MinLength > 0 {
		decl.Set("minLength", s.MinLength)
	}
	if s.MaxLength != nil {
		decl.Set("maxLength", *s.MaxLength)
	}
	if s.Min != nil {
		decl.Set("minimum", *s.Min)
	}
	if s.Max != nil {
		decl.Set("maximum", *s.Max)
	}
	if s.MinItems > 0 {
		decl.Set("minItems", s.MinItems)
	}
	if s.MaxItems != nil {
		decl.Set("maxItems", *s.MaxItems)
	}
	if len(s.Enum) > 0 {
		decl.Set("enum", plain(s.Enum))
	}
	if s.Default != nil {
		decl.Set("default", plain(s.Default))
	}
	if s.Example != nil {
		decl.Set("example", plain(s.Example))
	}
	if s.Items != nil {
		if name, ok := schemaName(s.Items.Ref); ok {
			decl.Set("items", name)
		} else {
			decl.Set("items", c.typeDecl(s.Items))
		}
	}

	c.addProperties(props, s.Properties)
	if props.Len() > 0 {
		props.Range(func(name string, v any) bool {
			v.(*tree.Map).Set("required", containsName(required, name))
			return true
		})
		decl.Set("properties", props)
	}
	return decl
}

func (c *converter) addProperties(props *tree.Map, schemas openapi3.Schemas) {
	for _, name := range sortedKeys(schemas) {
		p := tree.MapOf("name", name, "displayName", name)
		p.Assign(c.typeDecl(schemas[name]))
		props.Set(name, p)
	}
}

func (c *converter) memberName(ref *openapi3.SchemaRef) string {
	if name, ok := schemaName(ref.Ref); ok {
		return name
	}
	if ref.Value == nil {
		return "any"
	}
	return ramlType(ref.Value)
}

func ramlType(s *openapi3.Schema) string {
	switch s.Type {
	case "integer", "number", "boolean", "object", "array":
		return s.Type
	case "string":
		switch s.Format {
		case "date":
			return "date-only"
		case "date-time":
			return "datetime"
		case "binary":
			return "file"
		}
		return "string"
	}
	switch {
	case len(s.Properties) > 0:
		return "object"
	case s.Items != nil:
		return "array"
	}
	return "any"
}

// schemaName returns the component name a local schema reference points to.
func schemaName(ref string) (string, bool) {
	if !strings.HasPrefix(ref, schemaRefPrefix) {
		return "", false
	}
	name := strings.TrimPrefix(ref, schemaRefPrefix)
	name = strings.ReplaceAll(name, "~1", "/")
	name = strings.ReplaceAll(name, "~0", "~")
	return name, name != ""
}

func serverVariables(srv *openapi3.Server) *tree.Map {
	out := tree.NewMap()
	for _, name := range sortedKeys(srv.Variables) {
		v := srv.Variables[name]
		if v == nil {
			continue
		}
		p := tree.MapOf("name", name, "displayName", name, "type", []any{"string"}, "required", true)
		setString(p, "description", v.Description)
		if v.Default != "" {
			p.Set("default", v.Default)
		}
		if len(v.Enum) > 0 {
			enum := make([]any, len(v.Enum))
			for i, e := range v.Enum {
				enum[i] = e
			}
			p.Set("enum", enum)
		}
		out.Set(name, p)
	}
	return out
}

// securedBy converts security requirements into securedBy entries. An empty
// requirement means anonymous access and becomes null. Schemes combined in
// one requirement are listed one after another.
func securedBy(reqs openapi3.SecurityRequirements) []any {
	out := make([]any, 0, len(reqs))
	for _, req := range reqs {
		if len(req) == 0 {
			out = append(out, nil)
			continue
		}
		for _, name := range sortedKeys(req) {
			scopes := req[name]
			if len(scopes) == 0 {
				out = append(out, name)
				continue
			}
			out = append(out, tree.MapOf(name, tree.MapOf("scopes", stringsToAny(scopes))))
		}
	}
	return out
}

func (c *converter) securitySchemes() []any {
	if c.doc.Components == nil {
		return nil
	}
	schemes := c.doc.Components.SecuritySchemes
	out := make([]any, 0, len(schemes))
	for _, name := range sortedKeys(schemes) {
		ref := schemes[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		out = append(out, tree.MapOf(name, securityScheme(name, ref.Value)))
	}
	return out
}

func securityScheme(name string, s *openapi3.SecurityScheme) *tree.Map {
	headers, query, responses, settings := tree.NewMap(), tree.NewMap(), tree.NewMap(), tree.NewMap()
	authorization := func() {
		headers.Set("Authorization", requiredString("Authorization"))
	}

	var typ string
	switch s.Type {
	case "apiKey":
		typ = "Pass Through"
		switch s.In {
		case "header":
			headers.Set(s.Name, requiredString(s.Name))
		case "query":
			query.Set(s.Name, requiredString(s.Name))
		}
	case "http":
		switch scheme := strings.ToLower(s.Scheme); scheme {
		case "basic":
			typ = "Basic Authentication"
		case "digest":
			typ = "Digest Authentication"
		default:
			typ = "x-" + scheme
			setString(settings, "bearerFormat", s.BearerFormat)
		}
		authorization()
	case "oauth2":
		typ = "OAuth 2.0"
		authorization()
		responses.Set("401", tree.MapOf("code", "401", "description", "Bad or expired token."))
		oauthSettings(settings, s.Flows)
	case "openIdConnect":
		typ = "x-openIdConnect"
		setString(settings, "openIdConnectUrl", s.OpenIdConnectUrl)
	default:
		typ = "x-" + s.Type
	}

	decl := tree.MapOf("name", name, "type", typ)
	setString(decl, "description", s.Description)
	describedBy := tree.NewMap()
	for _, part := range []struct {
		key string
		m   *tree.Map
	}{{"headers", headers}, {"queryParameters", query}, {"responses", responses}} {
		if part.m.Len() > 0 {
			describedBy.Set(part.key, part.m)
		}
	}
	if describedBy.Len() > 0 {
		decl.Set("describedBy", describedBy)
	}
	if settings.Len() > 0 {
		decl.Set("settings", settings)
	}
	return decl
}

func oauthSettings(settings *tree.Map, flows *openapi3.OAuthFlows) {
	if flows == nil {
		return
	}
	var grants []any
	scopes := map[string]bool{}
	add := func(grant string, f *openapi3.OAuthFlow) {
		if f == nil {
			return
		}
		grants = append(grants, grant)
		if f.AuthorizationURL != "" && !settings.Has("authorizationUri") {
			settings.Set("authorizationUri", f.AuthorizationURL)
		}
		if f.TokenURL != "" && !settings.Has("accessTokenUri") {
			settings.Set("accessTokenUri", f.TokenURL)
		}
		for s := range f.Scopes {
			scopes[s] = true
		}
	}
	add("authorization_code", flows.AuthorizationCode)
	add("implicit", flows.Implicit)
	add("password", flows.Password)
	add("client_credentials", flows.ClientCredentials)
	if len(grants) > 0 {
		settings.Set("authorizationGrants", grants)
	}
	if len(scopes) > 0 {
		settings.Set("scopes", stringsToAny(sortedKeys(scopes)))
	}
}

var templateParam = regexp.MustCompile(`\{([^{}]+)\}`)

// resources nests paths under the longest declared path that is a segment
// prefix of them.
func (c *converter) resources() []any {
	var top []any
	nodes := make(map[string]*tree.Map, len(c.doc.Paths))
	var declared []string
	for _, path := range sortedKeys(c.doc.Paths) {
		item := c.doc.Paths[path]
		if item == nil {
			continue
		}
		parent := ""
		for _, q := range declared {
			if strings.HasPrefix(path, q+"/") && len(q) > len(parent) {
				parent = q
			}
		}
		relative := strings.TrimPrefix(path, parent)
		node := c.resource(path, relative, item)
		nodes[path] = node
		declared = append(declared, path)
		if parent == "" {
			top = append(top, node)
			continue
		}
		children, _ := nodes[parent].Value("resources").([]any)
		nodes[parent].Set("resources", append(children, node))
	}
	return top
}

type operation struct {
	method string
	op     *openapi3.Operation
}

func operations(item *openapi3.PathItem) []operation {
	all := []operation{
		{"get", item.Get},
		{"post", item.Post},
		{"put", item.Put},
		{"delete", item.Delete},
		{"patch", item.Patch},
		{"head", item.Head},
		{"options", item.Options},
		{"trace", item.Trace},
	}
	out := all[:0]
	for _, o := range all {
		if o.op != nil {
			out = append(out, o)
		}
	}
	return out
}

func (c *converter) resource(path, relative string, item *openapi3.PathItem) *tree.Map {
	node := tree.MapOf("relativeUri", relative, "displayName", relative)
	setString(node, "description", firstNonEmpty(item.Description, item.Summary))
	node.Set("absoluteUri", strings.TrimRight(c.baseURI, "/")+path)

	// Path parameters may be declared on the item or on any operation; the
	// first declaration wins.
	pathParams := map[string]*openapi3.Parameter{}
	collect := func(params openapi3.Parameters) {
		for _, ref := range params {
			if ref == nil || ref.Value == nil || ref.Value.In != openapi3.ParameterInPath {
				continue
			}
			if _, ok := pathParams[ref.Value.Name]; !ok {
				pathParams[ref.Value.Name] = ref.Value
			}
		}
	}
	collect(item.Parameters)
	ops := operations(item)
	for _, o := range ops {
		collect(o.op.Parameters)
	}
	uriParams := tree.NewMap()
	for _, m := range templateParam.FindAllStringSubmatch(relative, -1) {
		name := m[1]
		if p, ok := pathParams[name]; ok {
			uriParams.Set(name, c.parameter(p))
			continue
		}
		uriParams.Set(name, requiredString(name))
	}
	if uriParams.Len() > 0 {
		node.Set("uriParameters", uriParams)
	}

	if len(ops) > 0 {
		methods := make([]any, 0, len(ops))
		for _, o := range ops {
			methods = append(methods, c.method(o, item.Parameters))
		}
		node.Set("methods", methods)
	}
	return node
}

func (c *converter) method(o operation, shared openapi3.Parameters) *tree.Map {
	node := tree.MapOf("method", o.method)
	setString(node, "displayName", o.op.OperationID)
	setString(node, "description", firstNonEmpty(o.op.Description, o.op.Summary))

	// Operation-level parameters override item-level ones.
	merged := map[string]*openapi3.Parameter{}
	for _, params := range []openapi3.Parameters{shared, o.op.Parameters} {
		for _, ref := range params {
			if ref == nil || ref.Value == nil {
				continue
			}
			merged[ref.Value.In+":"+ref.Value.Name] = ref.Value
		}
	}
	query, headers := tree.NewMap(), tree.NewMap()
	for _, key := range sortedKeys(merged) {
		p := merged[key]
		switch p.In {
		case openapi3.ParameterInQuery:
			query.Set(p.Name, c.parameter(p))
		case openapi3.ParameterInHeader:
			headers.Set(p.Name, c.parameter(p))
		}
	}
	if query.Len() > 0 {
		node.Set("queryParameters", query)
	}
	if headers.Len() > 0 {
		node.Set("headers", headers)
	}

	if rb := o.op.RequestBody; rb != nil && rb.Value != nil {
		if body := c.body(rb.Value.Content); body.Len() > 0 {
			node.Set("body", body)
		}
	}

	if len(o.op.Responses) > 0 {
		responses := tree.NewMap()
		for _, code := range sortedKeys(o.op.Responses) {
			ref := o.op.Responses[code]
			if ref == nil || ref.Value == nil {
				continue
			}
			responses.Set(code, c.response(code, ref.Value))
		}
		node.Set("responses", responses)
	}

	switch {
	case o.op.Security != nil:
		node.Set("securedBy", securedBy(*o.op.Security))
	case len(c.doc.Security) > 0:
		node.Set("securedBy", securedBy(c.doc.Security))
	}
	return node
}

func (c *converter) response(code string, r *openapi3.Response) *tree.Map {
	node := tree.MapOf("code", code)
	if r.Description != nil {
		setString(node, "description", *r.Description)
	}
	headers := tree.NewMap()
	for _, name := range sortedKeys(r.Headers) {
		ref := r.Headers[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		p := ref.Value.Parameter
		p.Name = name
		headers.Set(name, c.parameter(&p))
	}
	if headers.Len() > 0 {
		node.Set("headers", headers)
	}
	if body := c.body(r.Content); body.Len() > 0 {
		node.Set("body", body)
	}
	return node
}

func (c *converter) body(content openapi3.Content) *tree.Map {
	out := tree.NewMap()
	for _, mime := range sortedKeys(content) {
		mt := content[mime]
		if mt == nil {
			continue
		}
		decl := tree.MapOf("name", mime, "displayName", mime)
		decl.Assign(c.typeDecl(mt.Schema))
		if mt.Example != nil {
			decl.Set("example", plain(mt.Example))
		}
		if len(mt.Examples) > 0 {
			examples := make([]any, 0, len(mt.Examples))
			for _, name := range sortedKeys(mt.Examples) {
				ref := mt.Examples[name]
				if ref == nil || ref.Value == nil {
					continue
				}
				examples = append(examples, tree.MapOf("name", name, "value", plain(ref.Value.Value)))
			}
			decl.Set("examples", examples)
		}
		out.Set(mime, decl)
	}
	return out
}

func (c *converter) parameter(p *openapi3.Parameter) *tree.Map {
	decl := tree.MapOf("name", p.Name, "displayName", p.Name)
	if p.Schema != nil {
		decl.Assign(c.typeDecl(p.Schema))
	} else {
		decl.Set("type", []any{"string"})
	}
	decl.Set("required", p.Required || p.In == openapi3.ParameterInPath)
	setString(decl, "description", p.Description)
	if p.Example != nil {
		decl.Set("example", plain(p.Example))
	}
	return decl
}

func requiredString(name string) *tree.Map {
	return tree.MapOf("name", name, "displayName", name, "type", []any{"string"}, "required", true)
}

// plain converts decoded JSON values (map[string]any from kin-openapi) into
// tree values with sorted keys.
func plain(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := tree.NewMap()
		for _, k := range sortedKeys(t) {
			m.Set(k, plain(t[k]))
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}

func setString(m *tree.Map, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		m.Set(key, value)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func containsName(list []string, name string) bool {
	for _, s := range list {
		if s == name {
			return true
		}
	}
	return false
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
