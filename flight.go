package fetchonce

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Submit requests the outcome for ref within sess. Exactly one of
// three things happens, decided atomically against the session state:
//
//   - ref already resolved: w is invoked synchronously with the cached
//     outcome.
//   - ref currently in flight: w is queued behind earlier waiters and
//     invoked when the fetch settles. Waiters for the same fingerprint
//     are notified in arrival order.
//   - ref unseen: a single fetch is started and w is queued as its
//     first waiter.
//
// However many Submit calls race on fetch-equivalent references, the
// fetch collaborator runs exactly once per fingerprint per session.
// Failed fetches are cached like successes and never retried.
//
// w may be invoked from the goroutine that resolves the fetch and must
// not block. If sess is already closed, w is never invoked.
func (p *Pipeline[I, V]) Submit(ctx context.Context, sess *Session[V], ref Reference, w func(Outcome[V])) {
	fp := ref.Fingerprint()

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return
	}
	if out, ok := sess.cache[fp]; ok {
		sess.mu.Unlock()
		p.emit(EventHit, sess, fp, ref)
		w(out)
		return
	}
	if _, busy := sess.inflight[fp]; busy {
		sess.waiters[fp] = append(sess.waiters[fp], w)
		sess.mu.Unlock()
		p.emit(EventCoalesced, sess, fp, ref)
		return
	}
	sess.inflight[fp] = struct{}{}
	sess.waiters[fp] = append(sess.waiters[fp], w)
	sess.mu.Unlock()
	p.emit(EventMiss, sess, fp, ref)

	go p.download(ctx, sess, fp, ref)
}

// Fetch is the blocking form of Submit: it returns ref's payload once
// it resolves, sharing in-flight and cached outcomes like any other
// waiter. It returns ErrSessionClosed if sess closes first.
func (p *Pipeline[I, V]) Fetch(ctx context.Context, sess *Session[V], ref Reference) (V, error) {
	ch := make(chan Outcome[V], 1)
	p.Submit(ctx, sess, ref, func(out Outcome[V]) { ch <- out })

	var zero V
	select {
	case out := <-ch:
		return out.Value, out.Err
	case <-sess.done:
		return zero, ErrSessionClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (p *Pipeline[I, V]) download(ctx context.Context, sess *Session[V], fp Fingerprint, ref Reference) {
	if p.preFetch != nil {
		if out, ok := p.runPreFetch(ref); ok {
			p.resolve(sess, fp, ref, out)
			return
		}
	}
	p.resolve(sess, fp, ref, p.runFetch(ctx, ref))
}

func (p *Pipeline[I, V]) runPreFetch(ref Reference) (out Outcome[V], ok bool) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome[V]{Err: errors.Errorf("pre-fetch hook panicked: %v", r)}
			ok = true
		}
	}()
	return p.preFetch(ref)
}

func (p *Pipeline[I, V]) runFetch(ctx context.Context, ref Reference) (out Outcome[V]) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome[V]{Err: errors.Errorf("fetch panicked: %v", r)}
		}
	}()

	v, err := p.fetch(ctx, ref)
	if err == nil && p.postFetch != nil {
		v, err = p.postFetch(v, ref)
	}
	if err != nil {
		if p.postFailure != nil {
			if e := p.postFailure(err, ref); e != nil {
				err = e
			}
		}
		var zero V
		return Outcome[V]{Value: zero, Err: err}
	}
	return Outcome[V]{Value: v}
}

// resolve finalizes fp: the outcome is cached, the fingerprint leaves
// the in-flight set, and queued waiters drain in FIFO order. Resolving
// a fingerprint that is not in flight is a bookkeeping defect and
// panics. Resolving after the session closed discards the outcome.
func (p *Pipeline[I, V]) resolve(sess *Session[V], fp Fingerprint, ref Reference, out Outcome[V]) {
	if out.Err != nil {
		out.Err = sanitizeError(out.Err, ref)
		p.logger.Warn("fetch failed",
			zap.String("session", sess.ID),
			zap.String("fingerprint", string(fp)),
			zap.String("target", ref.URL),
			zap.Error(out.Err),
		)
	}

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return
	}
	if _, ok := sess.inflight[fp]; !ok {
		sess.mu.Unlock()
		panic("fetchonce: resolve of fingerprint not in flight: " + string(fp))
	}
	delete(sess.inflight, fp)
	sess.cache[fp] = out
	ws := sess.waiters[fp]
	delete(sess.waiters, fp)
	sess.mu.Unlock()

	for _, w := range ws {
		w(out)
	}
}

func (p *Pipeline[I, V]) emit(event Event, sess *Session[V], fp Fingerprint, ref Reference) {
	if p.observer == nil {
		return
	}
	p.observer.On(EventData{
		Event:       event,
		Session:     sess.ID,
		Fingerprint: fp,
		Target:      ref.URL,
	})
}
