// Package source obtains the raw RAML JSON tree the enhancer works on. RAML
// parser output (JSON or YAML) is decoded as is; OpenAPI 3 and Swagger 2
// documents are loaded with kin-openapi and converted into the same shape.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/ramlenhance/internal/tree"
)

// ErrorCode categorizes loader errors for clearer handling and messaging.
type ErrorCode string

const (
	InputError      ErrorCode = "InputError"
	NetworkError    ErrorCode = "NetworkError"
	ParseError      ErrorCode = "ParseError"
	ValidationError ErrorCode = "ValidationError"
	ConversionError ErrorCode = "ConversionError"
)

// LoadError is a structured error with optional location and JSON Pointer.
type LoadError struct {
	Code        ErrorCode
	Message     string
	Location    string // file path or URL
	JSONPointer string // e.g. "#/paths/~1pets/get"
	Cause       error
}

func (e *LoadError) Error() string { return e.Message }
func (e *LoadError) Unwrap() error { return e.Cause }

// Format names the kind of document that was loaded.
type Format string

const (
	FormatRAMLJSON Format = "raml-json"
	FormatOpenAPI3 Format = "openapi3"
	FormatSwagger2 Format = "swagger2"
)

// Document is a loaded input in raw RAML JSON shape.
type Document struct {
	Tree     *tree.Map
	Format   Format
	Location string
	// OpenAPI is set for openapi3 and swagger2 inputs.
	OpenAPI *openapi3.T
}

// Settings configures loader behavior.
type Settings struct {
	// HTTPTimeout bounds each HTTP request.
	HTTPTimeout time.Duration
	// MaxRetries for transient HTTP failures (>=500, 429, or network errors).
	MaxRetries int
	// BackoffBase is the base delay for exponential backoff.
	BackoffBase time.Duration
	// AllowFileRefs controls whether file:// refs are allowed for external references.
	// Default false, but automatically allowed when the root input is a local file
	// to enable typical multi-file specs.
	AllowFileRefs bool
	Logger        *zap.Logger
}

// DefaultSettings returns recommended defaults.
func DefaultSettings() Settings {
	return Settings{
		HTTPTimeout: 10 * time.Second,
		MaxRetries:  3,
		BackoffBase: 200 * time.Millisecond,
		Logger:      zap.NewNop(),
	}
}

// Option mutates Settings.
type Option func(*Settings)

func WithHTTPTimeout(d time.Duration) Option { return func(s *Settings) { s.HTTPTimeout = d } }
func WithMaxRetries(n int) Option           { return func(s *Settings) { s.MaxRetries = n } }
func WithBackoffBase(d time.Duration) Option { return func(s *Settings) { s.BackoffBase = d } }
func WithAllowFileRefs(allow bool) Option   { return func(s *Settings) { s.AllowFileRefs = allow } }
func WithLogger(l *zap.Logger) Option       { return func(s *Settings) { s.Logger = l } }

// Load reads input and returns it as a raw RAML JSON tree.
//
// input may be a filesystem path or an http/https URL. file:// URLs are
// blocked. Raw RAML text is rejected: it has to go through a RAML parser
// first.
func Load(ctx context.Context, input string, opts ...Option) (*Document, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &LoadError{Code: InputError, Message: "source: input is empty"}
	}

	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.Logger == nil {
		settings.Logger = zap.NewNop()
	}

	location, base, rootIsFile, raw, err := read(ctx, input, settings)
	if err != nil {
		return nil, err
	}

	format, derr := detectFormat(raw)
	if derr != nil {
		return nil, &LoadError{Code: ParseError, Message: derr.Error(), Location: location, Cause: derr}
	}
	settings.Logger.Debug("Loaded input", zap.String("location", location), zap.String("format", string(format)), zap.Int("bytes", len(raw)))

	doc := &Document{Format: format, Location: location}
	switch format {
	case FormatRAMLJSON:
		v, err := tree.Decode(raw)
		if err != nil {
			return nil, &LoadError{Code: ParseError, Message: err.Error(), Location: location, Cause: err}
		}
		m, ok := v.(*tree.Map)
		if !ok {
			return nil, &LoadError{Code: ParseError, Message: "source: document root must be a map", Location: location}
		}
		doc.Tree = m
		return doc, nil

	case FormatOpenAPI3:
		loader := newLoader(settings, rootIsFile)
		v3doc, err := loader.LoadFromDataWithPath(raw, base)
		if err != nil {
			return nil, mapValidateOrParseErr(err, location)
		}
		doc.OpenAPI = v3doc

	case FormatSwagger2:
		v3doc, err := convertSwagger2(raw, settings.Logger)
		if err != nil {
			return nil, &LoadError{Code: ConversionError, Message: fmt.Sprintf("convert v2→v3: %v", err), Location: location, Cause: err}
		}
		loader := newLoader(settings, rootIsFile)
		if err := loader.ResolveRefsIn(v3doc, base); err != nil {
			settings.Logger.Warn("Failed to resolve refs after conversion", zap.String("location", location), zap.Error(err))
		}
		doc.OpenAPI = v3doc

	default:
		return nil, &LoadError{Code: ParseError, Message: fmt.Sprintf("source: unsupported format %q", format), Location: location}
	}

	if err := doc.OpenAPI.Validate(ctx); err != nil {
		if !canProceedDespiteValidation(err) {
			return nil, mapValidateOrParseErr(err, location)
		}
		settings.Logger.Warn("Proceeding despite validation errors", zap.String("location", location), zap.Error(err))
	}
	doc.Tree = FromOpenAPI(doc.OpenAPI)
	return doc, nil
}

// read fetches or reads input and reports where it came from.
func read(ctx context.Context, input string, settings Settings) (location string, base *url.URL, rootIsFile bool, raw []byte, err error) {
	// Classify input as URL or file path.
	u, uerr := url.Parse(input)
	isURL := uerr == nil && u.Scheme != "" && u.Host != ""

	if isURL {
		scheme := strings.ToLower(u.Scheme)
		if scheme == "file" {
			return "", nil, false, nil, &LoadError{Code: InputError, Message: "source: file:// URLs are blocked by default", Location: input}
		}
		if scheme != "http" && scheme != "https" {
			return "", nil, false, nil, &LoadError{Code: InputError, Message: fmt.Sprintf("source: unsupported URL scheme %q (only http/https allowed)", scheme), Location: input}
		}
		raw, ferr := fetchWithRetry(ctx, input, settings)
		if ferr != nil {
			return "", nil, false, nil, &LoadError{Code: NetworkError, Message: fmt.Sprintf("fetch %s: %v", input, ferr), Location: input, Cause: ferr}
		}
		return input, u, false, raw, nil
	}

	abs, aerr := filepath.Abs(input)
	if aerr != nil {
		return "", nil, false, nil, &LoadError{Code: InputError, Message: fmt.Sprintf("resolve path: %v", aerr), Location: input, Cause: aerr}
	}
	raw, rerr := os.ReadFile(abs)
	if rerr != nil {
		return "", nil, false, nil, &LoadError{Code: InputError, Message: fmt.Sprintf("read file %s: %v", abs, rerr), Location: abs, Cause: rerr}
	}
	return abs, &url.URL{Path: filepath.ToSlash(abs)}, true, raw, nil
}

func newLoader(settings Settings, rootIsFile bool) *openapi3.Loader {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true
	client := &http.Client{Timeout: settings.HTTPTimeout}
	// Allow file refs only when configured or when loading from a local file root.
	allowFile := settings.AllowFileRefs || rootIsFile
	loader.ReadFromURIFunc = func(l *openapi3.Loader, uri *url.URL) ([]byte, error) {
		switch strings.ToLower(uri.Scheme) {
		case "", "file":
			if !allowFile {
				return nil, fmt.Errorf("blocked file ref: %s", uri.String())
			}
			path := uri.Path
			if path == "" {
				path = uri.Opaque
			}
			return os.ReadFile(path)
		case "http", "https":
			req, err := http.NewRequest(http.MethodGet, uri.String(), nil)
			if err != nil {
				return nil, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				return nil, fmt.Errorf("http %d: %s", resp.StatusCode, uri.String())
			}
			return io.ReadAll(resp.Body)
		default:
			return nil, fmt.Errorf("unsupported ref scheme: %s", uri.Scheme)
		}
	}
	return loader
}

var errRAMLText = errors.New("source: raw RAML text is not supported; convert it to JSON with a RAML parser first")

// detectFormat classifies raw input bytes.
func detectFormat(data []byte) (Format, error) {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("#%RAML")) {
		return "", errRAMLText
	}
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return "", fmt.Errorf("parse input: %w", err)
	}
	if root == nil {
		return "", errors.New("source: input is empty or not a map")
	}
	if v, ok := root["openapi"]; ok {
		if s, _ := v.(string); strings.HasPrefix(strings.TrimSpace(s), "3.") {
			return FormatOpenAPI3, nil
		}
		return "", fmt.Errorf("source: unsupported OpenAPI version %v (expected 3.x)", v)
	}
	if v, ok := root["swagger"]; ok {
		if s, _ := v.(string); strings.HasPrefix(strings.TrimSpace(s), "2.") {
			return FormatSwagger2, nil
		}
		return "", fmt.Errorf("source: unsupported Swagger version %v (expected 2.0)", v)
	}
	return FormatRAMLJSON, nil
}

func fetchWithRetry(ctx context.Context, rawURL string, settings Settings) ([]byte, error) {
	client := &http.Client{Timeout: settings.HTTPTimeout}
	var lastErr error
	backoff := settings.BackoffBase
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	attempts := settings.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		body, retry, err := fetchOnce(ctx, client, rawURL)
		if err == nil {
			return body, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
		settings.Logger.Debug("Retrying fetch", zap.String("url", rawURL), zap.Int("attempt", i+1), zap.Error(err))
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if lastErr == nil {
		lastErr = errors.New("fetch failed")
	}
	return nil, lastErr
}

// fetchOnce performs a single GET. retry reports whether the failure is
// transient.
func fetchOnce(ctx context.Context, client *http.Client, rawURL string) (body []byte, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 300 {
		body, err := io.ReadAll(resp.Body)
		return body, err != nil, err
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, fmt.Errorf("transient http error %d", resp.StatusCode)
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return nil, false, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}

func mapValidateOrParseErr(err error, location string) error {
	pointer := extractJSONPointer(err)
	code := ValidationError
	// Heuristics: some loader errors are parse errors.
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "parse") || strings.Contains(lower, "invalid character") || strings.Contains(lower, "unmarshal") {
		code = ParseError
	}
	return &LoadError{Code: code, Message: err.Error(), Location: location, JSONPointer: pointer, Cause: err}
}

var jsonPtrRe = regexp.MustCompile(`#/[^\s'"]+`)

func extractJSONPointer(err error) string {
	if err == nil {
		return ""
	}
	// Unwrap MultiError and take the first for brevity.
	if me, ok := err.(openapi3.MultiError); ok {
		if len(me) > 0 {
			return extractJSONPointer(me[0])
		}
	}
	var se *openapi3.SchemaError
	if errors.As(err, &se) {
		if parts := se.JSONPointer(); len(parts) > 0 {
			return "#/" + strings.Join(parts, "/")
		}
		if se.SchemaField != "" {
			return se.SchemaField
		}
	}
	if m := jsonPtrRe.FindString(err.Error()); m != "" {
		return m
	}
	return ""
}

// canProceedDespiteValidation returns true for validation errors where a
// best-effort conversion can still proceed (e.g., unresolved $ref entries).
func canProceedDespiteValidation(err error) bool {
	if err == nil {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unresolved ref") || strings.Contains(s, "found unresolved ref")
}
