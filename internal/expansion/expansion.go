// Package expansion provides enhancer.Expander implementations: an in-process
// identity expander and one that delegates to an external type-algebra
// program.
package expansion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mark3labs/ramlenhance/internal/enhancer"
	"github.com/mark3labs/ramlenhance/internal/tree"
)

// Stage names sent to external expanders.
const (
	StageExpanded  = "expanded"
	StageCanonical = "canonical"
)

// Identity returns a copy of its input for both stages.
type Identity struct{}

func (Identity) ExpandedForm(_ context.Context, _ string, decl any, _ *tree.Map) (any, error) {
	return tree.Clone(decl), nil
}

func (Identity) CanonicalForm(_ context.Context, _ string, expanded any) (any, error) {
	return tree.Clone(expanded), nil
}

// Command runs an external program once per stage and type. The request is
// written to stdin as JSON:
//
//	{"stage": "expanded", "name": "Pet", "type": {...}, "types": {...}}
//
// and the form is read from stdout. Empty or null output means no form.
type Command struct {
	Path    string
	Args    []string
	Dir     string
	Timeout time.Duration // per call; zero means the caller's context only
	Logger  *zap.Logger
}

// NewCommand splits a command line on whitespace.
func NewCommand(line string, timeout time.Duration, logger *zap.Logger) (*Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, errors.New("expander command is empty")
	}
	return &Command{Path: fields[0], Args: fields[1:], Timeout: timeout, Logger: logger}, nil
}

var _ enhancer.Expander = (*Command)(nil)
var _ enhancer.Expander = Identity{}

func (c *Command) ExpandedForm(ctx context.Context, name string, decl any, types *tree.Map) (any, error) {
	return c.run(ctx, tree.MapOf("stage", StageExpanded, "name", name, "type", decl, "types", types))
}

func (c *Command) CanonicalForm(ctx context.Context, name string, expanded any) (any, error) {
	return c.run(ctx, tree.MapOf("stage", StageCanonical, "name", name, "type", expanded))
}

func (c *Command) run(ctx context.Context, req *tree.Map) (any, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	in, err := tree.EncodeJSON(req, false)
	if err != nil {
		return nil, fmt.Errorf("encode expansion request: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = time.Second
	cmd.Stdin = bytes.NewReader(in)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger().Debug("Running expander",
		zap.String("stage", req.Value("stage").(string)),
		zap.String("type", req.Value("name").(string)),
		zap.Strings("args", cmd.Args))

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("expander %s: %w", c.Path, ctx.Err())
		}
		return nil, &ExecError{Err: err, Stderr: strings.TrimSpace(stderr.String())}
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil, nil
	}
	form, err := tree.Decode(out)
	if err != nil {
		return nil, fmt.Errorf("expander %s: invalid output: %w", c.Path, err)
	}
	return form, nil
}

func (c *Command) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// ExecError reports a failed expander run together with its stderr.
type ExecError struct {
	Err    error
	Stderr string
}

func (e *ExecError) Error() string {
	if e.Stderr == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Stderr
}

func (e *ExecError) Unwrap() error { return e.Err }
