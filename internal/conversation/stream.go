// ABOUTME: Relays a completed reply as start, per-word content, and end events
// ABOUTME: Chunking and pacing are a post-processing stage over Answer

package conversation

import (
	"context"
	"strings"
	"time"
)

// EventType discriminates relay events.
type EventType string

const (
	EventStart   EventType = "start"
	EventContent EventType = "content"
	EventEnd     EventType = "end"
	EventError   EventType = "error"
)

// Event is one relay frame. Each frame serializes independently.
type Event struct {
	Type      EventType `json:"type"`
	Content   string    `json:"content,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Code      string    `json:"code,omitempty"`
}

// Chunk splits text into relay chunks: each whitespace-separated word
// followed by a single space.
func Chunk(text string) []string {
	words := strings.Fields(text)
	chunks := make([]string, len(words))
	for i, w := range words {
		chunks[i] = w + " "
	}
	return chunks
}

// StreamAnswer answers the turn and relays the reply word by word.
// The channel yields start, one content event per word, then end; if the
// turn fails it yields start and a single error event instead. The channel
// is closed when the sequence finishes or ctx is canceled.
func (s *Service) StreamAnswer(ctx context.Context, turn ChatTurn) <-chan Event {
	out := make(chan Event)

	go func() {
		defer close(out)

		if !s.emit(ctx, out, Event{Type: EventStart, SessionID: turn.SessionID}) {
			return
		}

		reply, err := s.Answer(ctx, turn)
		if err != nil {
			cerr := classify(err)
			s.emit(ctx, out, Event{Type: EventError, Error: cerr.Message, Code: cerr.Kind.String()})
			return
		}

		if !s.relay(ctx, out, Chunk(reply.Text)) {
			s.logger.Debug("relay stopped, caller went away", "session_id", turn.SessionID)
			return
		}

		s.emit(ctx, out, Event{Type: EventEnd, SessionID: turn.SessionID})
	}()

	return out
}

// relay sends chunks as content events, pausing ChunkDelay between them.
// It returns false if ctx ends first.
func (s *Service) relay(ctx context.Context, out chan<- Event, chunks []string) bool {
	timer := time.NewTimer(s.cfg.ChunkDelay)
	defer timer.Stop()

	for i, chunk := range chunks {
		if i > 0 {
			timer.Reset(s.cfg.ChunkDelay)
			select {
			case <-ctx.Done():
				return false
			case <-timer.C:
			}
		}
		if !s.emit(ctx, out, Event{Type: EventContent, Content: chunk}) {
			return false
		}
	}
	return true
}

func (s *Service) emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		if s.observer != nil {
			s.observer.ObserveRelayEvent(string(ev.Type))
		}
		return true
	case <-ctx.Done():
		return false
	}
}
