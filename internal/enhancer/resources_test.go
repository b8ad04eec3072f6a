package enhancer

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mark3labs/ramlenhance/internal/tree"
)

func names(t *testing.T, v any) []string {
	t.Helper()
	seq, ok := v.([]any)
	if !ok {
		t.Fatalf("expected a sequence, got %T", v)
	}
	out := make([]string, 0, len(seq))
	for _, e := range seq {
		m, ok := e.(*tree.Map)
		if !ok {
			t.Fatalf("expected a map element, got %T", e)
		}
		s, _ := m.Value("name").(string)
		out = append(out, s)
	}
	return out
}

func TestEnrichResources_AccumulatesUriParameters(t *testing.T) {
	t.Parallel()
	root := decodeMap(t, `{
		"baseUri": "http://api.example.com/",
		"baseUriParameters": [{"name": "p0"}],
		"resources": [{
			"relativeUri": "/a",
			"uriParameters": [{"name": "p1"}],
			"resources": [{
				"relativeUri": "/b",
				"uriParameters": [{"name": "p2"}],
				"methods": [{"method": "get"}]
			}]
		}]
	}`)
	if err := EnrichResources(root, nil); err != nil {
		t.Fatalf("enrich: %v", err)
	}

	a := at(t, root, "resources", 0).(*tree.Map)
	if got := a.Value("parentUrl"); got != "" {
		t.Fatalf("/a parentUrl: got %#v", got)
	}
	if diff := cmp.Diff([]string{"p0", "p1"}, names(t, a.Value("allUriParameters"))); diff != "" {
		t.Fatalf("/a allUriParameters (-want +got):\n%s", diff)
	}

	b := at(t, a, "resources", 0).(*tree.Map)
	if got := b.Value("parentUrl"); got != "/a" {
		t.Fatalf("/b parentUrl: got %#v", got)
	}
	if diff := cmp.Diff([]string{"p0", "p1", "p2"}, names(t, b.Value("allUriParameters"))); diff != "" {
		t.Fatalf("/b allUriParameters (-want +got):\n%s", diff)
	}
	if got := b.Value("absoluteUri"); got != "http://api.example.com/a/b" {
		t.Fatalf("/b absoluteUri: got %#v", got)
	}

	get := at(t, b, "methods", 0).(*tree.Map)
	if diff := cmp.Diff([]string{"p0", "p1", "p2"}, names(t, get.Value("allUriParameters"))); diff != "" {
		t.Fatalf("method allUriParameters (-want +got):\n%s", diff)
	}
	if get.Value("absoluteUri") != b.Value("absoluteUri") {
		t.Fatalf("method absoluteUri should mirror the resource")
	}
	if at(t, get, "allUriParameters", 0) == at(t, b, "allUriParameters", 0) {
		t.Fatalf("method parameters must not share nodes with the resource")
	}
}

func TestEnrichResources_KeepsParsedAbsoluteUri(t *testing.T) {
	t.Parallel()
	root := decodeMap(t, `{"baseUri": "http://x", "resources": [{"relativeUri": "/a", "absoluteUri": "http://parsed/a", "methods": [{"method": "post"}]}]}`)
	if err := EnrichResources(root, nil); err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if got := at(t, root, "resources", 0, "methods", 0, "absoluteUri"); got != "http://parsed/a" {
		t.Fatalf("absoluteUri: got %#v", got)
	}
}

func TestEnrichResources_ResolvesSecurity(t *testing.T) {
	t.Parallel()
	schemes := decodeMap(t, `{
		"oauth2": {
			"type": "OAuth 2.0",
			"describedBy": {
				"headers": [{"name": "Authorization"}],
				"responses": [{"code": "401"}]
			},
			"settings": {"scopes": ["read"]}
		}
	}`)
	root := decodeMap(t, `{"resources": [{
		"relativeUri": "/a",
		"methods": [
			{"method": "get", "securedBy": ["oauth2"], "headers": [{"name": "X-Trace"}], "responses": [{"code": "200"}]},
			{"method": "put", "securedBy": [{"oauth2": {"scopes": ["write"]}}]}
		]
	}]}`)
	if err := EnrichResources(root, schemes); err != nil {
		t.Fatalf("enrich: %v", err)
	}

	get := at(t, root, "resources", 0, "methods", 0).(*tree.Map)
	if diff := cmp.Diff([]string{"X-Trace", "Authorization"}, names(t, get.Value("headers"))); diff != "" {
		t.Fatalf("headers (-want +got):\n%s", diff)
	}
	scheme, ok := at(t, get, "securedBy", 0).(*tree.Map)
	if !ok {
		t.Fatalf("securedBy[0] should be resolved, got %#v", at(t, get, "securedBy", 0))
	}
	if scheme == schemes.Value("oauth2") {
		t.Fatalf("resolved scheme must be a copy")
	}
	if scheme.Value("type") != "OAuth 2.0" {
		t.Fatalf("scheme type: got %#v", scheme.Value("type"))
	}
	if diff := cmp.Diff(`[{"code":"200"},{"code":"401"}]`, jsonOf(t, get.Value("responses"))); diff != "" {
		t.Fatalf("responses (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(`[]`, jsonOf(t, get.Value("queryParameters"))); diff != "" {
		t.Fatalf("queryParameters (-want +got):\n%s", diff)
	}

	put := at(t, root, "resources", 0, "methods", 1).(*tree.Map)
	if diff := cmp.Diff(`{"scopes":["write"]}`, jsonOf(t, at(t, put, "securedBy", 0, "settings"))); diff != "" {
		t.Fatalf("settings (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(`{"scopes":["read"]}`, jsonOf(t, at(t, schemes, "oauth2", "settings"))); diff != "" {
		t.Fatalf("registry settings must not change (-want +got):\n%s", diff)
	}

	resource := at(t, root, "resources", 0).(*tree.Map)
	for _, k := range []string{"queryParameters", "headers", "securedBy"} {
		if diff := cmp.Diff(`[]`, jsonOf(t, resource.Value(k))); diff != "" {
			t.Fatalf("resource %s (-want +got):\n%s", k, diff)
		}
	}
}

func TestEnrichResources_UnknownSchemeIsKept(t *testing.T) {
	t.Parallel()
	schemes := decodeMap(t, `{"basic": {"type": "Basic Authentication"}}`)
	root := decodeMap(t, `{"resources": [{"relativeUri": "/a", "securedBy": ["custom", null]}]}`)
	if err := EnrichResources(root, schemes); err != nil {
		t.Fatalf("enrich: %v", err)
	}
	resource := at(t, root, "resources", 0).(*tree.Map)
	if diff := cmp.Diff(`["custom",null]`, jsonOf(t, resource.Value("securedBy"))); diff != "" {
		t.Fatalf("securedBy (-want +got):\n%s", diff)
	}
	if resource.Has("responses") {
		t.Fatalf("responses should not be materialized when nothing was resolved")
	}
}

func TestSortResponses_Stable(t *testing.T) {
	t.Parallel()
	responses := []any{
		tree.MapOf("code", "404", "name", "missing"),
		tree.MapOf("code", "200", "name", "first"),
		tree.MapOf("code", 200, "name", "second"),
		tree.MapOf("key", "201", "name", "keyed"),
		tree.MapOf("code", "default", "name", "fallback"),
	}
	sortResponses(responses)
	if diff := cmp.Diff([]string{"first", "second", "keyed", "missing", "fallback"}, names(t, responses)); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
}

func TestEnrichResources_StructuralErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		src  string
		path string
	}{
		{"resources not a sequence", `{"resources": "nope"}`, "#/resources"},
		{"resource not a map", `{"resources": [1]}`, "#/resources/0"},
		{"uriParameters not a sequence", `{"resources": [{"uriParameters": {"id": {}}}]}`, "#/resources/0/uriParameters"},
		{"methods not a sequence", `{"resources": [{"methods": {"get": {}}}]}`, "#/resources/0/methods"},
		{"securedBy not a sequence", `{"resources": [{"methods": [{"securedBy": "oauth2"}]}]}`, "#/resources/0/methods/0/securedBy"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := EnrichResources(decodeMap(t, tc.src), nil)
			var e *Error
			if !errors.As(err, &e) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if e.Code != StructuralError || e.Path != tc.path {
				t.Fatalf("unexpected error: %+v", e)
			}
		})
	}
}
