// ABOUTME: HTTP API handlers for chat turns, JSON and SSE relay
// ABOUTME: Maps conversation failures onto status codes and error bodies

package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/2389/psychat-gateway/internal/conversation"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 1 << 20

// ChatRequest is the JSON request body for POST /api/chat and /api/chat/stream.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the JSON response for POST /api/chat.
type ChatResponse struct {
	Reply     string `json:"reply"`
	ReplyHTML string `json:"reply_html,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error          string `json:"error"`
	Code           string `json:"code,omitempty"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
}

// handleChat answers one turn and returns the whole reply.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := parseChatRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := g.conversation.Answer(r.Context(), conversation.ChatTurn{
		Message:   req.Message,
		SessionID: req.SessionID,
	})
	if err != nil {
		g.writeTurnError(w, err)
		return
	}

	resp := ChatResponse{Reply: reply.Text, SessionID: reply.SessionID}
	if r.URL.Query().Get("format") == "html" {
		resp.ReplyHTML = g.renderMarkdown(reply.Text)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleChatStream answers one turn and relays it as server-sent events.
// Each frame is a single data line holding one JSON-encoded relay event.
func (g *Gateway) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, err := parseChatRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Check streaming support before sending (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	events := g.conversation.StreamAnswer(r.Context(), conversation.ChatTurn{
		Message:   req.Message,
		SessionID: req.SessionID,
	})
	for ev := range events {
		if err := g.writeSSEEvent(w, ev); err != nil {
			g.logger.Debug("stopping relay, client write failed", "error", err)
			// Drain so the producer can finish and close the channel
			for range events {
			}
			return
		}
		flusher.Flush()
	}
}

// writeSSEEvent writes a single SSE frame to the response writer.
func (g *Gateway) writeSSEEvent(w io.Writer, ev conversation.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// writeTurnError maps a failed turn onto its HTTP status and error body.
func (g *Gateway) writeTurnError(w http.ResponseWriter, err error) {
	var cerr *conversation.Error
	if !errors.As(err, &cerr) {
		g.logger.Error("unclassified chat failure", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, cerr.Kind.HTTPStatus(), ErrorResponse{
		Error:          cerr.Message,
		Code:           cerr.Kind.String(),
		UpstreamStatus: cerr.UpstreamStatus,
	})
}

func (g *Gateway) renderMarkdown(text string) string {
	var buf bytes.Buffer
	if err := g.markdown.Convert([]byte(text), &buf); err != nil {
		g.logger.Warn("failed to render reply markdown", "error", err)
		return ""
	}
	return buf.String()
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON decodes a size-limited request body into v.
func decodeJSON(body io.Reader, v any) error {
	if err := json.NewDecoder(io.LimitReader(body, maxRequestBody)).Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

// parseChatRequest parses and validates a ChatRequest from the given reader.
// Returns an error if the JSON is invalid or the message is blank.
func parseChatRequest(r io.Reader) (*ChatRequest, error) {
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.Message) == "" {
		return nil, errors.New("message is required")
	}
	req.SessionID = strings.TrimSpace(req.SessionID)

	return &req, nil
}
