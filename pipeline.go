package fetchonce

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FetchFunc is the fetch collaborator: the only component that
// performs I/O. It must eventually settle; any timeout is its own
// responsibility (the engine imposes none).
type FetchFunc[V any] func(ctx context.Context, ref Reference) (V, error)

// ExtractFunc lists the resource references an item wants fetched. It
// may return an empty list.
type ExtractFunc[I any] func(item I) []Reference

// PreFetchFunc may short-circuit a fetch: returning ok true supplies
// the outcome directly and the fetch collaborator is skipped for that
// fingerprint.
type PreFetchFunc[V any] func(ref Reference) (Outcome[V], bool)

// PostFetchFunc transforms or rejects a nominally-successful transport
// result before it is cached.
type PostFetchFunc[V any] func(v V, ref Reference) (V, error)

// PostFailureFunc transforms a transport failure before it is cached.
// Returning nil keeps the original error.
type PostFailureFunc func(err error, ref Reference) error

// CompletionFunc is invoked exactly once per processed item, after all
// of its references resolved, with one result per reference in
// extraction order.
type CompletionFunc[I, V any] func(results Results[V], item I)

// Pipeline coordinates fetch deduplication for a stream of items. The
// zero value is not usable; construct with New. Hooks must be attached
// before the first item is processed.
type Pipeline[I, V any] struct {
	fetch   FetchFunc[V]
	extract ExtractFunc[I]

	preFetch    PreFetchFunc[V]
	postFetch   PostFetchFunc[V]
	postFailure PostFailureFunc
	onComplete  CompletionFunc[I, V]

	logger   *zap.Logger
	observer Observer
	limit    int
}

// New builds a Pipeline around a fetch collaborator and a reference
// extractor.
func New[I, V any](fetch FetchFunc[V], extract ExtractFunc[I], opts ...Option) *Pipeline[I, V] {
	s := settings{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&s)
	}
	return &Pipeline[I, V]{
		fetch:    fetch,
		extract:  extract,
		logger:   s.logger,
		observer: s.observer,
		limit:    s.limit,
	}
}

// WithPreFetch attaches the pre-fetch short-circuit hook. Returns p
// for chaining.
func (p *Pipeline[I, V]) WithPreFetch(fn PreFetchFunc[V]) *Pipeline[I, V] {
	p.preFetch = fn
	return p
}

// WithPostFetch attaches the success post-processing hook. Returns p
// for chaining.
func (p *Pipeline[I, V]) WithPostFetch(fn PostFetchFunc[V]) *Pipeline[I, V] {
	p.postFetch = fn
	return p
}

// WithPostFailure attaches the failure post-processing hook. Returns p
// for chaining.
func (p *Pipeline[I, V]) WithPostFailure(fn PostFailureFunc) *Pipeline[I, V] {
	p.postFailure = fn
	return p
}

// WithCompletion attaches the per-item completion hook. Without one,
// the pipeline logs each failed entry when an item completes. Returns
// p for chaining.
func (p *Pipeline[I, V]) WithCompletion(fn CompletionFunc[I, V]) *Pipeline[I, V] {
	p.onComplete = fn
	return p
}

// Task is the pending resolution of one item: created when the item
// enters the engine, finished when its completion hook has fired (or
// the item was abandoned).
type Task[I, V any] struct {
	item      I
	results   Results[V]
	abandoned bool
	done      chan struct{}
}

// Wait blocks until the item's references have all resolved and the
// completion hook has run, then returns the ordered results. It
// returns ErrAbandoned if the session closed first.
func (t *Task[I, V]) Wait(ctx context.Context) (Results[V], error) {
	select {
	case <-t.done:
		if t.abandoned {
			return nil, ErrAbandoned
		}
		return t.results, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Process submits one item: its references are extracted, each is
// submitted to the session (deduplicated against fetches already
// cached or in flight), and once every reference resolves the
// completion hook fires with one result per reference in extraction
// order. An item with no references completes immediately.
//
// Process returns without blocking; the Task is for callers that want
// to observe completion, and may be ignored for fire-and-forget use.
func (p *Pipeline[I, V]) Process(ctx context.Context, sess *Session[V], item I) *Task[I, V] {
	t := &Task[I, V]{item: item, done: make(chan struct{})}

	refs := p.runExtract(sess, item)
	if len(refs) == 0 {
		t.results = Results[V]{}
		p.complete(sess, t)
		return t
	}

	t.results = make(Results[V], len(refs))
	var abandoned atomic.Bool

	var g errgroup.Group
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}
	for i, ref := range refs {
		g.Go(func() error {
			ch := make(chan Outcome[V], 1)
			p.Submit(ctx, sess, ref, func(out Outcome[V]) { ch <- out })
			select {
			case out := <-ch:
				t.results[i] = Result[V]{Ref: ref, Outcome: out}
			case <-sess.done:
				abandoned.Store(true)
			case <-ctx.Done():
				abandoned.Store(true)
			}
			return nil
		})
	}

	go func() {
		g.Wait()
		if abandoned.Load() {
			t.abandoned = true
			p.logger.Debug("item abandoned", zap.String("session", sess.ID))
			close(t.done)
			return
		}
		p.complete(sess, t)
	}()

	return t
}

func (p *Pipeline[I, V]) runExtract(sess *Session[V], item I) (refs []Reference) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("extract hook panicked",
				zap.String("session", sess.ID),
				zap.Any("panic", r),
			)
			refs = nil
		}
	}()
	return p.extract(item)
}

// complete fires the completion hook exactly once. A panicking hook is
// contained: it is logged and the session state is untouched.
func (p *Pipeline[I, V]) complete(sess *Session[V], t *Task[I, V]) {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("completion hook panicked",
				zap.String("session", sess.ID),
				zap.Any("panic", r),
			)
		}
	}()

	if p.onComplete != nil {
		p.onComplete(t.results, t.item)
		return
	}
	for _, r := range t.results {
		if !r.Outcome.OK() {
			p.logger.Error("item reference failed",
				zap.String("session", sess.ID),
				zap.String("target", r.Ref.URL),
				zap.Error(r.Outcome.Err),
			)
		}
	}
}
