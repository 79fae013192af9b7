// Package dedupe rejects repeated submissions within a time window.
//
// The gateway claims FeedbackKey(session, message) before saving feedback;
// a second rating of the same reply inside the window is answered with 409.
// A failed save releases its claim so the client can retry.
package dedupe
