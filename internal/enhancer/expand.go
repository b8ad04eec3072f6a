package enhancer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mark3labs/ramlenhance/internal/tree"
)

// Expander computes the expanded and canonical forms of a single type
// declaration. Implementations must not mutate their arguments and may be
// called concurrently. A nil form with a nil error means "no form".
type Expander interface {
	ExpandedForm(ctx context.Context, name string, decl any, types *tree.Map) (any, error)
	CanonicalForm(ctx context.Context, name string, expanded any) (any, error)
}

type expansionResult struct {
	form  any
	stage string // "canonical", "expanded" or "original"
	err   error
}

// ExpandTypes replaces every declaration of types with its canonical form.
// A type whose canonical form is unavailable keeps its expanded form, and one
// whose expansion fails keeps its original declaration. Requests run
// concurrently and the map is only written once all of them have settled.
// When the settings carry an expansion timeout that elapses first, types is
// returned untouched. Cancelling ctx itself aborts with its error.
func ExpandTypes(ctx context.Context, types *tree.Map, opts ...Option) (*tree.Map, error) {
	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	return expandTypes(ctx, types, settings)
}

func expandTypes(ctx context.Context, types *tree.Map, s Settings) (*tree.Map, error) {
	if types.Len() == 0 || s.Expander == nil {
		return types, nil
	}
	log := s.logger()

	parent := ctx
	if s.ExpansionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.ExpansionTimeout)
		defer cancel()
	}

	// Expanders read a private copy so a timed-out request can keep running
	// while the caller moves on with types.
	snapshot, _ := tree.Clone(types).(*tree.Map)
	names := snapshot.Keys()
	results := make([]expansionResult, len(names))

	g := new(errgroup.Group)
	if s.Concurrency > 0 {
		g.SetLimit(s.Concurrency)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i, name := range names {
			i, name := i, name
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				results[i] = expandOne(ctx, s.Expander, name, snapshot)
				return nil
			})
		}
		_ = g.Wait()
	}()

	settled := false
	select {
	case <-done:
		settled = allSettled(results)
	case <-ctx.Done():
		// Both may be ready; settled results win.
		select {
		case <-done:
			settled = allSettled(results)
		default:
		}
	}
	if err := parent.Err(); err != nil {
		return nil, fmt.Errorf("expand types: %w", err)
	}
	if !settled {
		log.Warn("Type expansion did not finish, keeping declarations unexpanded",
			zap.Int("types", len(names)), zap.Error(ctx.Err()))
		return types, nil
	}

	out := tree.NewMap()
	for i, name := range names {
		r := results[i]
		if r.err != nil {
			log.Warn("Type expansion failed, keeping a less expanded form",
				zap.String("type", name), zap.String("kept", r.stage), zap.Error(r.err))
		}
		out.Set(name, r.form)
	}
	log.Debug("Expanded types", zap.Int("types", len(names)))
	return out, nil
}

func allSettled(results []expansionResult) bool {
	for _, r := range results {
		if r.stage == "" {
			return false
		}
	}
	return true
}

func expandOne(ctx context.Context, x Expander, name string, types *tree.Map) (res expansionResult) {
	original := types.Value(name)
	res = expansionResult{form: original, stage: "original"}
	defer func() {
		if p := recover(); p != nil {
			res = expansionResult{form: original, stage: "original", err: fmt.Errorf("expander panic: %v", p)}
		}
	}()

	expanded, err := x.ExpandedForm(ctx, name, original, types)
	if err != nil || expanded == nil {
		res.err = err
		return res
	}
	res = expansionResult{form: expanded, stage: "expanded"}

	canonical, err := x.CanonicalForm(ctx, name, expanded)
	if err != nil || canonical == nil {
		res.err = err
		return res
	}
	return expansionResult{form: canonical, stage: "canonical"}
}
