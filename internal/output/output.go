// Package output renders an enhanced document and writes it to stdout or a
// file.
package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/ramlenhance/internal/tree"
)

// Format selects the serialization.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrExists is returned when the target file exists and Force is not set.
var ErrExists = errors.New("output file exists")

// Options controls Write.
type Options struct {
	Path   string // target file; empty or "-" writes to Stdout
	Format Format // defaults to json
	Pretty bool   // indent JSON; YAML is always indented
	Force  bool   // overwrite an existing file
	DryRun bool   // render and plan, but don't write
	Stdout io.Writer
}

// Result describes what Write did or, on a dry run, would do.
type Result struct {
	Path    string // "-" for stdout
	Format  Format
	Size    int
	Written bool
}

// Render serializes v. JSON output ends with a newline.
func Render(v any, format Format, pretty bool) ([]byte, error) {
	switch format {
	case "", FormatJSON:
		b, err := tree.EncodeJSON(v, pretty)
		if err != nil {
			return nil, fmt.Errorf("render json: %w", err)
		}
		return append(b, '\n'), nil
	case FormatYAML:
		b, err := tree.EncodeYAML(v)
		if err != nil {
			return nil, fmt.Errorf("render yaml: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// Write renders v and writes it according to opts.
func Write(v any, opts Options) (*Result, error) {
	format := opts.Format
	if format == "" {
		format = FormatJSON
	}
	data, err := Render(v, format, opts.Pretty)
	if err != nil {
		return nil, err
	}
	res := &Result{Path: "-", Format: format, Size: len(data)}

	path := strings.TrimSpace(opts.Path)
	if path == "" || path == "-" {
		if opts.DryRun {
			return res, nil
		}
		w := opts.Stdout
		if w == nil {
			w = os.Stdout
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("write stdout: %w", err)
		}
		res.Written = true
		return res, nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve output path: %w", err)
	}
	res.Path = abs
	if st, err := os.Stat(abs); err == nil {
		if st.IsDir() {
			return nil, fmt.Errorf("output path %q is a directory", abs)
		}
		if !opts.Force {
			return nil, fmt.Errorf("%w: %q (use --force to overwrite)", ErrExists, abs)
		}
	}
	if opts.DryRun {
		return res, nil
	}
	if err := writeFile(abs, data); err != nil {
		return nil, err
	}
	res.Written = true
	return res, nil
}

// writeFile replaces path atomically via a temp file in the same directory.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("write temp %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("close temp %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("chmod %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
