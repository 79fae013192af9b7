// Package gateway orchestrates the psychat-gateway server components.
//
// # Overview
//
// The gateway package owns the HTTP server and wires together the session
// store, the upstream workspace client, the conversation service, the
// feedback dedupe window and the optional Prometheus collector.
//
// # Gateway Struct
//
//	type Gateway struct {
//	    config         *config.Config
//	    store          store.Store
//	    upstream       *upstream.Client
//	    conversation   *conversation.Service
//	    metrics        *metrics.Collector
//	    feedbackDedupe *dedupe.Window
//	    httpServer     *http.Server
//	    tsnetServer    *tsnet.Server
//	}
//
// # HTTP API
//
//	GET    /                    {"status":"API is running"}
//	GET    /health              liveness, always "OK"
//	GET    /health/ready        503 when the database does not answer
//	POST   /api/chat            one turn, JSON reply (?format=html adds reply_html)
//	POST   /api/chat/stream     one turn, relayed as server-sent events
//	POST   /api/sessions        create a session
//	GET    /api/sessions        list sessions
//	GET    /api/sessions/{id}   fetch a session
//	PUT    /api/sessions/{id}   rename a session
//	DELETE /api/sessions/{id}   delete a session
//	POST   /api/feedback        rate a reply (409 on repeat inside the dedupe window)
//	GET    /api/feedback        list feedback, optionally ?session_id=
//	GET    /api/resources       list resources, ?category= ?location= ?limit=
//	GET    /metrics             Prometheus exposition when enabled
//
// # Streaming
//
// /api/chat/stream writes one frame per relay event:
//
//	data: {"type":"start","session_id":"abc"}
//
//	data: {"type":"content","content":"Hello "}
//
//	data: {"type":"end","session_id":"abc"}
//
// A failed turn ends with an error frame carrying "error" and "code" and no
// end frame.
//
// # Errors
//
// Failed requests answer {"error": "...", "code": "..."}. Chat failures use
// the conversation.Kind code and status; upstream_rejected adds
// upstream_status.
//
// # Listeners
//
// Without Tailscale the server listens on server.http_addr. With
// tailscale.enabled it joins the tailnet through tsnet and serves on :80,
// on :443 with tailnet certificates (tailscale.https), or publicly through
// Funnel (tailscale.funnel).
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx) // blocks until ctx is canceled, then shuts down
package gateway
