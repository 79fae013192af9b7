// ABOUTME: HTTP handlers for recording and listing reply feedback
// ABOUTME: Repeated ratings of one reply inside the dedupe window are rejected with 409

package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/psychat-gateway/internal/dedupe"
	"github.com/2389/psychat-gateway/internal/store"
)

// FeedbackRequest is the JSON body for POST /api/feedback.
// Rating is a pointer so a missing field can be told apart from 0 (negative).
type FeedbackRequest struct {
	MessageID   string `json:"message_id"`
	SessionID   string `json:"session_id"`
	UserQuery   string `json:"user_query"`
	BotResponse string `json:"bot_response"`
	Rating      *int   `json:"rating"`
	Comment     string `json:"comment,omitempty"`
}

// FeedbackResponse is the JSON form of a stored feedback row.
type FeedbackResponse struct {
	ID          string `json:"id"`
	MessageID   string `json:"message_id"`
	SessionID   string `json:"session_id,omitempty"`
	UserQuery   string `json:"user_query"`
	BotResponse string `json:"bot_response"`
	Rating      int    `json:"rating"`
	Comment     string `json:"comment,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// Feedback submission results, used as the metrics label.
const (
	feedbackAccepted  = "accepted"
	feedbackDuplicate = "duplicate"
	feedbackInvalid   = "invalid"
	feedbackFailed    = "error"
)

func (r *FeedbackRequest) validate() error {
	switch {
	case strings.TrimSpace(r.MessageID) == "":
		return errors.New("message_id is required")
	case r.UserQuery == "":
		return errors.New("user_query is required")
	case r.BotResponse == "":
		return errors.New("bot_response is required")
	case r.Rating == nil:
		return errors.New("rating is required")
	case *r.Rating != store.RatingNegative && *r.Rating != store.RatingPositive:
		return errors.New("rating must be 0 or 1")
	}
	return nil
}

func (g *Gateway) handleCreateFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		g.observeFeedback(feedbackInvalid)
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		g.observeFeedback(feedbackInvalid)
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := dedupe.FeedbackKey(req.SessionID, req.MessageID)
	if !g.feedbackDedupe.Claim(key) {
		g.observeFeedback(feedbackDuplicate)
		g.logger.Info("duplicate feedback rejected", "session_id", req.SessionID, "message_id", req.MessageID)
		g.sendJSONError(w, http.StatusConflict, "feedback for this message was already recorded")
		return
	}

	fb := &store.Feedback{
		ID:          uuid.New().String(),
		MessageID:   req.MessageID,
		SessionID:   req.SessionID,
		UserQuery:   req.UserQuery,
		BotResponse: req.BotResponse,
		Rating:      *req.Rating,
		Comment:     req.Comment,
		CreatedAt:   time.Now().UTC(),
	}
	if err := g.store.SaveFeedback(r.Context(), fb); err != nil {
		g.feedbackDedupe.Release(key)
		g.observeFeedback(feedbackFailed)
		g.logger.Error("failed to save feedback", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.observeFeedback(feedbackAccepted)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": fb.ID})
}

func (g *Gateway) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	limit, ok := g.parseLimit(w, r)
	if !ok {
		return
	}

	rows, err := g.store.ListFeedback(r.Context(), r.URL.Query().Get("session_id"), limit)
	if err != nil {
		g.logger.Error("failed to list feedback", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]FeedbackResponse, 0, len(rows))
	for _, fb := range rows {
		out = append(out, FeedbackResponse{
			ID:          fb.ID,
			MessageID:   fb.MessageID,
			SessionID:   fb.SessionID,
			UserQuery:   fb.UserQuery,
			BotResponse: fb.BotResponse,
			Rating:      fb.Rating,
			Comment:     fb.Comment,
			CreatedAt:   fb.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"feedback": out})
}

func (g *Gateway) observeFeedback(result string) {
	if g.metrics != nil {
		g.metrics.ObserveFeedback(result)
	}
}

// parseLimit reads an optional positive ?limit= value. On failure it writes
// a 400 and returns false.
func (g *Gateway) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}
