package fetchonce

import "go.uber.org/zap"

type settings struct {
	logger   *zap.Logger
	observer Observer
	limit    int
}

// Option configures a Pipeline created by New.
type Option func(*settings)

// WithObserver attaches an Observer that receives hit, miss, and
// coalesce events for every reference the pipeline submits.
func WithObserver(o Observer) Option {
	return func(s *settings) {
		s.observer = o
	}
}

// WithLogger sets the logger used for failed fetches and recovered
// hook panics. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

// WithConcurrencyLimit bounds how many of one item's references are
// submitted concurrently. Zero (the default) means no bound.
func WithConcurrencyLimit(n int) Option {
	return func(s *settings) {
		s.limit = n
	}
}
