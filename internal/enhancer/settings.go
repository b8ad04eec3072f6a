package enhancer

import (
	"time"

	"go.uber.org/zap"
)

// Settings configures the enhancer.
type Settings struct {
	// Expander computes expanded/canonical type forms. Nil skips expansion.
	Expander Expander
	// ExpansionTimeout bounds the whole expansion fan-out. Zero means no limit.
	ExpansionTimeout time.Duration
	// Concurrency caps in-flight expansion requests. Zero means unbounded.
	Concurrency int
	Logger      *zap.Logger
}

// DefaultSettings returns recommended defaults.
func DefaultSettings() Settings {
	return Settings{Logger: zap.NewNop()}
}

// Option mutates Settings.
type Option func(*Settings)

func WithExpander(x Expander) Option                { return func(s *Settings) { s.Expander = x } }
func WithExpansionTimeout(d time.Duration) Option { return func(s *Settings) { s.ExpansionTimeout = d } }
func WithConcurrency(n int) Option                 { return func(s *Settings) { s.Concurrency = n } }
func WithLogger(l *zap.Logger) Option              { return func(s *Settings) { s.Logger = l } }

func (s Settings) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
