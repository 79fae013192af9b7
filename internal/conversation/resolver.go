// ABOUTME: Resolves client session ids to upstream thread ids
// ABOUTME: Creates and persists a thread on first use, collapsing concurrent first turns

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/2389/psychat-gateway/internal/store"
)

// ThreadCreator is the part of the upstream client the resolver needs.
type ThreadCreator interface {
	CreateThread(ctx context.Context) (string, error)
}

// ThreadContext says where a turn should be dispatched.
// An empty ThreadID means the workspace-general endpoint.
type ThreadContext struct {
	SessionID string
	ThreadID  string

	// Created is true when this turn created the thread
	Created bool
}

// Scoped reports whether the turn is bound to a thread.
func (tc ThreadContext) Scoped() bool {
	return tc.ThreadID != ""
}

// Resolver maps session ids to upstream threads.
type Resolver struct {
	sessions store.SessionStore
	creator  ThreadCreator
	logger   *slog.Logger

	// inflight collapses concurrent resolutions of the same session in this process
	inflight singleflight.Group
}

// NewResolver creates a Resolver. A nil sessions store disables thread
// binding and every turn goes to the workspace endpoint.
func NewResolver(sessions store.SessionStore, creator ThreadCreator, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		sessions: sessions,
		creator:  creator,
		logger:   logger.With("component", "resolver"),
	}
}

// Resolve returns the thread for sessionID, creating one when the session
// is unknown or not yet bound. At most one create call and one store write
// happen per unresolved session, however many turns arrive at once.
func (r *Resolver) Resolve(ctx context.Context, sessionID string) (ThreadContext, error) {
	if sessionID == "" {
		return ThreadContext{}, nil
	}
	if r.sessions == nil {
		r.logger.Debug("no session store, using workspace chat", "session_id", sessionID)
		return ThreadContext{SessionID: sessionID}, nil
	}

	session, err := r.sessions.GetSession(ctx, sessionID)
	switch {
	case err == nil && session.ThreadID != "":
		return ThreadContext{SessionID: sessionID, ThreadID: session.ThreadID}, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return ThreadContext{}, fmt.Errorf("lookup session: %w", err)
	}

	ch := r.inflight.DoChan(sessionID, func() (any, error) {
		// Detached from the first caller so a disconnect does not fail the
		// other turns waiting on the same session.
		return r.bind(context.WithoutCancel(ctx), sessionID)
	})

	select {
	case <-ctx.Done():
		return ThreadContext{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return ThreadContext{}, res.Err
		}
		tc := res.Val.(ThreadContext)
		tc.Created = tc.Created && !res.Shared
		return tc, nil
	}
}

func (r *Resolver) bind(ctx context.Context, sessionID string) (ThreadContext, error) {
	// Another turn may have bound the session between our read and acquiring the flight.
	if session, err := r.sessions.GetSession(ctx, sessionID); err == nil && session.ThreadID != "" {
		return ThreadContext{SessionID: sessionID, ThreadID: session.ThreadID}, nil
	}

	threadID, err := r.creator.CreateThread(ctx)
	if err != nil {
		return ThreadContext{}, fmt.Errorf("create thread: %w", err)
	}

	session, err := r.sessions.UpsertThreadID(ctx, sessionID, threadID, store.DefaultDisplayName(sessionID))
	if err != nil {
		return ThreadContext{}, fmt.Errorf("bind thread: %w", err)
	}

	if session.ThreadID != threadID {
		// Another process won the race; its binding is authoritative.
		r.logger.Warn("session already bound, discarding new thread",
			"session_id", sessionID,
			"bound_thread_id", session.ThreadID,
			"discarded_thread_id", threadID)
		return ThreadContext{SessionID: sessionID, ThreadID: session.ThreadID}, nil
	}

	r.logger.Info("thread bound to session", "session_id", sessionID, "thread_id", threadID)
	return ThreadContext{SessionID: sessionID, ThreadID: threadID, Created: true}, nil
}
