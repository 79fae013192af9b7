// Package upstream is the HTTP client for the AnythingLLM workspace API.
//
// Three calls are supported, all POSTs with JSON bodies:
//
//	{base}/v1/workspace/{slug}/thread/new          -> create a thread
//	{base}/v1/workspace/{slug}/thread/{id}/chat    -> chat within a thread
//	{base}/v1/workspace/{slug}/chat                -> chat without a thread
//
// Each call is bounded by Config.Timeout and carries a Bearer token when an
// API key is configured. The client never retries.
//
// Failures are returned as *Error tagged with a Kind:
//
//   - KindTimeout: the per-call deadline elapsed
//   - KindConnect: no response was received
//   - KindStatus: non-2xx status; Retryable for 5xx, 408 and 429
//   - KindMalformed: a 2xx body that is not a JSON object
//
// Successful chat calls return the decoded body unchanged; extracting reply
// text is the job of package normalize.
package upstream
