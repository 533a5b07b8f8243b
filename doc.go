// Package fetchonce provides session-scoped fetch deduplication and
// per-item fan-out.
//
// When a stream of items each reference external resources (images,
// documents) that must be fetched over the network, fetchonce ensures
// every distinct resource is fetched at most once per session, however
// many items reference it concurrently. Callers requesting an
// already-in-flight resource attach to the pending fetch; callers
// requesting an already-resolved resource get the cached outcome,
// including cached failures.
//
// Build a [Pipeline] from a fetch collaborator and a reference
// extractor, open a [Session] per crawl, then submit items:
//
//	p := fetchonce.New(fetchImage, pageImages)
//
//	sess := p.OpenSession()
//	defer sess.Close()
//
//	task := p.Process(ctx, sess, page)
//	results, err := task.Wait(ctx)
//
// An item's completion hook fires exactly once, after every one of its
// references has resolved, with one result per reference in submitted
// order. Failures are cached like successes: the engine never retries;
// retry policy belongs to the fetch collaborator.
//
// Closing a session is a hard boundary. Pending fetches are abandoned,
// no further completion hooks fire, and nothing cached in one session
// is visible to another.
package fetchonce
