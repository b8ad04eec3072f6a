package output

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mark3labs/ramlenhance/internal/tree"
)

func sampleDoc() *tree.Map {
	return tree.MapOf(
		"title", "Pets",
		"resources", []any{tree.MapOf("relativeUri", "/pets")},
	)
}

func TestWrite_StdoutCompact(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	res, err := Write(sampleDoc(), Options{Stdout: &buf})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	want := `{"title":"Pets","resources":[{"relativeUri":"/pets"}]}` + "\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatalf("stdout (-want +got):\n%s", diff)
	}
	if res.Path != "-" || !res.Written || res.Size != len(want) {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestWrite_FilePrettyAndForce(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "api.json")
	if _, err := Write(sampleDoc(), Options{Path: path, Pretty: true}); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "{\n  \"title\": \"Pets\",\n  \"resources\": [\n    {\n      \"relativeUri\": \"/pets\"\n    }\n  ]\n}\n"
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Fatalf("file (-want +got):\n%s", diff)
	}

	_, err = Write(sampleDoc(), Options{Path: path})
	if !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := Write(tree.MapOf("title", "v2"), Options{Path: path, Force: true}); err != nil {
		t.Fatalf("forced write: %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "{\"title\":\"v2\"}\n" {
		t.Fatalf("forced content: %q", data)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestWrite_DryRunDoesNotWrite(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "api.yaml")
	res, err := Write(sampleDoc(), Options{Path: path, Format: FormatYAML, DryRun: true})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if res.Written || res.Size == 0 || res.Format != FormatYAML {
		t.Fatalf("unexpected result: %+v", res)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("expected no files written on dry-run")
	}
}

func TestRender_YAMLKeepsOrder(t *testing.T) {
	t.Parallel()
	b, err := Render(sampleDoc(), FormatYAML, false)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "title: Pets\nresources:\n  - relativeUri: /pets\n"
	if diff := cmp.Diff(want, string(b)); diff != "" {
		t.Fatalf("yaml (-want +got):\n%s", diff)
	}
	if _, err := Render(sampleDoc(), "xml", false); err == nil {
		t.Fatalf("expected an error for an unknown format")
	}
}
