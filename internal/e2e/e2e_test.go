package e2e

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cli "github.com/mark3labs/ramlenhance/internal/cli"
)

// minimal OpenAPI v3 spec with a nested resource, a component type and a
// security scheme
const minimalSpec = "" +
	"openapi: 3.0.0\n" +
	"info:\n" +
	"  title: E2E Sample\n" +
	"  version: '1.0.0'\n" +
	"servers:\n" +
	"  - url: https://api.example.com/v1\n" +
	"security:\n" +
	"  - key: []\n" +
	"paths:\n" +
	"  /pets:\n" +
	"    get:\n" +
	"      summary: List pets\n" +
	"      responses:\n" +
	"        '200':\n" +
	"          description: ok\n" +
	"          content:\n" +
	"            application/json:\n" +
	"              schema:\n" +
	"                type: array\n" +
	"                items:\n" +
	"                  $ref: '#/components/schemas/Pet'\n" +
	"  /pets/{id}:\n" +
	"    get:\n" +
	"      parameters:\n" +
	"        - name: id\n" +
	"          in: path\n" +
	"          required: true\n" +
	"          schema:\n" +
	"            type: string\n" +
	"      responses:\n" +
	"        '404':\n" +
	"          description: missing\n" +
	"        '200':\n" +
	"          description: ok\n" +
	"          content:\n" +
	"            application/json:\n" +
	"              schema:\n" +
	"                $ref: '#/components/schemas/Pet'\n" +
	"components:\n" +
	"  schemas:\n" +
	"    Pet:\n" +
	"      type: object\n" +
	"      required: [name]\n" +
	"      properties:\n" +
	"        name:\n" +
	"          type: string\n" +
	"  securitySchemes:\n" +
	"    key:\n" +
	"      type: apiKey\n" +
	"      in: header\n" +
	"      name: X-Api-Key\n"

// minimal RAML parser output with a declared type and a trait-free resource tree
const minimalRAMLJSON = `{"specification": {
  "title": "E2E RAML",
  "baseUri": "http://api.example.com/{version}",
  "baseUriParameters": {"version": {"type": "string", "enum": ["v1"]}},
  "types": [
    {"Named": {"type": "object", "properties": {"name": {"type": "string"}}}},
    {"Pet": {"type": "Named", "properties": {"age": {"type": "integer"}}}}
  ],
  "resources": [{
    "relativeUri": "/pets",
    "methods": [{"method": "post", "body": {"application/json": {"type": "Pet"}}}],
    "resources": [{
      "relativeUri": "/{id}",
      "uriParameters": {"id": {"type": "string"}},
      "methods": [{"method": "get", "responses": {"200": {"code": "200", "body": {"application/json": {"type": "Pet"}}}}}]
    }]
  }]
}}`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func runCLI(t *testing.T, args ...string) {
	t.Helper()
	root := cli.NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("cli execute %v: %v", args, err)
	}
}

func digestFile(t *testing.T, path string) (content, sum string) {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	h := sha256.Sum256(b)
	return string(b), hex.EncodeToString(h[:])
}

func TestE2E_OpenAPI_Deterministic(t *testing.T) {
	t.Parallel()
	spec := writeTemp(t, "spec.yaml", minimalSpec)
	out1 := filepath.Join(t.TempDir(), "api.json")
	out2 := filepath.Join(t.TempDir(), "api.json")

	runCLI(t, "enhance", "--input", spec, "--out", out1, "--pretty")
	runCLI(t, "enhance", "--input", spec, "--out", out2, "--pretty")

	content, sum1 := digestFile(t, out1)
	_, sum2 := digestFile(t, out2)
	if sum1 != sum2 {
		t.Fatalf("enhanced outputs differ between runs\nsum1=%s\nsum2=%s", sum1, sum2)
	}

	for _, want := range []string{
		`"absoluteUri": "https://api.example.com/v1/pets/{id}"`,
		`"relativeUri": "/{id}"`,
		// the security scheme header lands on every secured method
		`"key": "X-Api-Key"`,
		`"type": "Pass Through"`,
	} {
		if !strings.Contains(content, want) {
			t.Fatalf("output lacks %s:\n%s", want, content)
		}
	}
	// 200 sorts before 404 even though the document lists 404 first.
	if strings.Index(content, `"code": "200"`) > strings.Index(content, `"code": "404"`) {
		t.Fatalf("responses are not sorted by code:\n%s", content)
	}
}

func TestE2E_RAMLJSON_ExpanderFallbacks(t *testing.T) {
	t.Parallel()
	if !haveCmd("sh") {
		t.Skip("sh not available")
	}
	input := writeTemp(t, "api.json", minimalRAMLJSON)
	scripts := t.TempDir()
	noForm := filepath.Join(scripts, "noform.sh")
	failing := filepath.Join(scripts, "fail.sh")
	if err := os.WriteFile(noForm, []byte("cat >/dev/null\necho null\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	if err := os.WriteFile(failing, []byte("cat >/dev/null\necho 'no algebra here' >&2\nexit 3\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	outDir := t.TempDir()
	identity := filepath.Join(outDir, "identity.json")
	runCLI(t, "enhance", "--input", input, "--out", identity)
	want, wantSum := digestFile(t, identity)

	// An expander that yields no forms, or fails outright, keeps every
	// declaration as written, so the output matches the in-process run.
	for name, script := range map[string]string{"noform": noForm, "failing": failing} {
		out := filepath.Join(outDir, name+".json")
		runCLI(t, "enhance", "--input", input, "--out", out, "--expander-cmd", "sh "+script, "--concurrency", "2")
		got, sum := digestFile(t, out)
		if sum != wantSum {
			t.Fatalf("%s expander changed the output\nwant=%s\ngot=%s", name, want, got)
		}
	}

	for _, frag := range []string{
		`"absoluteUri":"http://api.example.com/{version}/pets/{id}"`,
		`"properties":[{"type":"string","key":"name"},{"type":"integer","key":"age"}]`,
	} {
		if !strings.Contains(want, frag) {
			t.Fatalf("output lacks %s:\n%s", frag, want)
		}
	}
}

func TestE2E_Binary(t *testing.T) {
	t.Parallel()
	// Optional: build and run the binary if toolchain is available
	if os.Getenv("RAMLENHANCE_E2E_ONLINE") != "1" || !haveCmd("go") {
		t.Skip("set RAMLENHANCE_E2E_ONLINE=1 to build the binary")
	}
	bin := filepath.Join(t.TempDir(), "ramlenhance")
	if err := runCmdWithTimeout("../..", 2*time.Minute, "go", "build", "-o", bin, "./cmd/ramlenhance"); err != nil {
		t.Skipf("go build skipped (likely offline or missing deps): %v", err)
	}
	input := writeTemp(t, "api.json", minimalRAMLJSON)
	out := filepath.Join(t.TempDir(), "api.yaml")
	if err := runCmdWithTimeout("", time.Minute, bin, "enhance", "--input", input, "--out", out, "--format", "yaml"); err != nil {
		t.Fatalf("run binary: %v", err)
	}
	content, _ := digestFile(t, out)
	if !strings.Contains(content, "title: E2E RAML") {
		t.Fatalf("unexpected output:\n%s", content)
	}
	if err := runCmdWithTimeout("", time.Minute, bin, "enhance"); err == nil {
		t.Fatalf("expected a non-zero exit without --input")
	}
}

func haveCmd(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func runCmdWithTimeout(dir string, timeout time.Duration, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if err != nil {
		// include output for diagnostics
		return &execError{err: err, output: out.String()}
	}
	return nil
}

type execError struct {
	err    error
	output string
}

func (e *execError) Error() string { return e.err.Error() + ": " + e.output }
