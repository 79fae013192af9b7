// Package conversation answers chat turns against the upstream LLM workspace.
//
// # Service
//
// The Service is built once from an explicit Config and shared by all
// request handlers:
//
//	svc := conversation.New(cfg, sessionStore, upstreamClient, logger)
//
// Key operations:
//
//   - Answer(ctx, turn): resolve the thread, dispatch, normalize the reply
//   - StreamAnswer(ctx, turn): Answer, then relay the reply as events
//
// # Thread Resolution
//
// A turn without a session id goes to the workspace-general endpoint. A turn
// with one is bound to an upstream thread:
//
//  1. Look up the session; a bound thread id is used as is
//  2. Otherwise create a thread upstream and persist it on the session,
//     inserting the session if it did not exist
//  3. Concurrent first turns for the same session share one create call
//
// A bound thread is never replaced. If the upstream later rejects it, the
// turn fails with KindUpstreamRejected.
//
// # Failures
//
// Answer fails only with *Error, whose Kind is one of:
//
//   - KindServiceNotConfigured: base URL or workspace missing, no network call made
//   - KindUpstreamUnavailable: connect failure or timeout (HTTP 503)
//   - KindUpstreamRejected: upstream non-2xx, carries UpstreamStatus (HTTP 502)
//   - KindInternal: anything else, detail logged only (HTTP 500)
//
// A 2xx body with no recognisable reply is not a failure; the turn answers
// with normalize.FallbackReply.
//
// # Relay
//
// StreamAnswer emits:
//
//	start, content("word ")..., end
//	start, error                     (when Answer fails)
//
// Content events are spaced by Config.ChunkDelay. The relay stops as soon as
// the caller's context is canceled.
package conversation
