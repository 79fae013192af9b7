// ABOUTME: HTTP handlers for session metadata: create, list, get, rename, delete
// ABOUTME: Sessions are also created implicitly by the first chat turn that names them

package gateway

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/psychat-gateway/internal/store"
)

// SessionRequest is the JSON body for POST and PUT /api/sessions.
type SessionRequest struct {
	Name string `json:"name"`
}

// SessionResponse is the JSON form of a session.
type SessionResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ThreadID  string `json:"thread_id,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ListSessionsResponse is the JSON response for GET /api/sessions.
type ListSessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

func toSessionResponse(s *store.Session) SessionResponse {
	return SessionResponse{
		ID:        s.ID,
		Name:      s.DisplayName,
		ThreadID:  s.ThreadID,
		CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (g *Gateway) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r.Body, &req); err != nil {
			g.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	id := uuid.New().String()
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = store.DefaultDisplayName(id)
	}

	now := time.Now().UTC()
	session := &store.Session{
		ID:          id,
		DisplayName: name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.store.CreateSession(r.Context(), session); err != nil {
		g.logger.Error("failed to create session", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, ok := g.parseLimit(w, r)
	if !ok {
		return
	}

	sessions, err := g.store.ListSessions(r.Context(), limit)
	if err != nil {
		g.logger.Error("failed to list sessions", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := ListSessionsResponse{Sessions: make([]SessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, toSessionResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := g.store.GetSession(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to get session", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (g *Gateway) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		g.sendJSONError(w, http.StatusBadRequest, "name is required")
		return
	}

	id := r.PathValue("id")
	if err := g.store.RenameSession(r.Context(), id, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		g.logger.Error("failed to rename session", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.handleGetSession(w, r)
}

func (g *Gateway) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := g.store.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		g.logger.Error("failed to delete session", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
