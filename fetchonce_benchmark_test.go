package fetchonce_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"golang.org/x/sync/singleflight"

	fetchonce "github.com/probablyarth/fetchonce-go"
)

func benchPipeline() *fetchonce.Pipeline[page, string] {
	return fetchonce.New(func(context.Context, fetchonce.Reference) (string, error) {
		return "v", nil
	}, extractImages)
}

func benchRef(i int) fetchonce.Reference {
	return fetchonce.Reference{URL: fmt.Sprintf("https://example.com/%d.png", i)}
}

// ---------------------------------------------------------------------------
// Single-goroutine benchmarks: measure per-call latency.
// ---------------------------------------------------------------------------

// How fast is a cache hit (lock + map lookup)?
func BenchmarkCacheHit(b *testing.B) {
	ctx := context.Background()
	p := benchPipeline()
	sess := p.OpenSession()
	defer sess.Close()
	p.Fetch(ctx, sess, benchRef(0))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Fetch(ctx, sess, benchRef(0))
	}
}

// How fast is a cache miss (flight start + resolve + waiter drain)?
func BenchmarkCacheMiss(b *testing.B) {
	refs := make([]fetchonce.Reference, b.N)
	for i := range refs {
		refs[i] = benchRef(i)
	}

	ctx := context.Background()
	p := benchPipeline()
	sess := p.OpenSession()
	defer sess.Close()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Fetch(ctx, sess, refs[i])
	}
}

// Fingerprint derivation alone: hashing plus URL canonicalization.
func BenchmarkFingerprint(b *testing.B) {
	ref := fetchonce.Reference{URL: "https://example.com/img?w=10&h=20"}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		ref.Fingerprint()
	}
}

// ---------------------------------------------------------------------------
// Concurrent benchmarks: measure throughput under contention.
// ---------------------------------------------------------------------------

// 1000 goroutines all requesting the same reference.
// Only one fetch executes; the rest wait and share the outcome.
func BenchmarkConcurrent_SameKey(b *testing.B) {
	ctx := context.Background()
	p := benchPipeline()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		sess := p.OpenSession()
		var wg sync.WaitGroup
		wg.Add(1000)
		for j := 0; j < 1000; j++ {
			go func() {
				defer wg.Done()
				p.Fetch(ctx, sess, benchRef(0))
			}()
		}
		wg.Wait()
		sess.Close()
	}
}

// 1000 goroutines each requesting a unique reference. No dedup, pure
// registry contention.
func BenchmarkConcurrent_UniqueKeys(b *testing.B) {
	refs := make([]fetchonce.Reference, 1000)
	for i := range refs {
		refs[i] = benchRef(i)
	}

	ctx := context.Background()
	p := benchPipeline()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		sess := p.OpenSession()
		var wg sync.WaitGroup
		wg.Add(1000)
		for j := 0; j < 1000; j++ {
			go func(j int) {
				defer wg.Done()
				p.Fetch(ctx, sess, refs[j])
			}(j)
		}
		wg.Wait()
		sess.Close()
	}
}

// 1000 goroutines sharing 100 references. Realistic mix of hits and
// coalesced waiters.
func BenchmarkConcurrent_MixedKeys(b *testing.B) {
	refs := make([]fetchonce.Reference, 100)
	for i := range refs {
		refs[i] = benchRef(i)
	}

	ctx := context.Background()
	p := benchPipeline()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		sess := p.OpenSession()
		var wg sync.WaitGroup
		wg.Add(1000)
		for j := 0; j < 1000; j++ {
			go func(j int) {
				defer wg.Done()
				p.Fetch(ctx, sess, refs[j%100])
			}(j)
		}
		wg.Wait()
		sess.Close()
	}
}

// Full item path: extract, fan out, AND-join, completion.
func BenchmarkProcess_TenReferences(b *testing.B) {
	images := make([]string, 10)
	for i := range images {
		images[i] = fmt.Sprintf("https://example.com/%d.png", i)
	}
	item := page{name: "bench", images: images}

	ctx := context.Background()
	p := benchPipeline()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sess := p.OpenSession()
		p.Process(ctx, sess, item).Wait(ctx)
		sess.Close()
	}
}

// ---------------------------------------------------------------------------
// Singleflight comparison: same scenarios, raw singleflight (no cache,
// no waiter ordering).
// ---------------------------------------------------------------------------

// singleflight alone: 1000 goroutines, same key.
// Result is NOT cached, so every iteration goes through Do() again.
func BenchmarkSingleflight_SameKey(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		var g singleflight.Group
		var wg sync.WaitGroup
		wg.Add(1000)
		for j := 0; j < 1000; j++ {
			go func() {
				defer wg.Done()
				g.Do("https://example.com/0.png", func() (any, error) { return "v", nil })
			}()
		}
		wg.Wait()
	}
}

// singleflight alone: 1000 goroutines, 100 keys. Partial dedup.
func BenchmarkSingleflight_MixedKeys(b *testing.B) {
	keys := make([]string, 100)
	for i := range keys {
		keys[i] = fmt.Sprintf("https://example.com/%d.png", i)
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		var g singleflight.Group
		var wg sync.WaitGroup
		wg.Add(1000)
		for j := 0; j < 1000; j++ {
			go func(j int) {
				defer wg.Done()
				g.Do(keys[j%100], func() (any, error) { return "v", nil })
			}(j)
		}
		wg.Wait()
	}
}
