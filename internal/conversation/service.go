// ABOUTME: Service answers one chat turn against the upstream LLM workspace
// ABOUTME: Resolves the thread, dispatches the message and normalizes the reply

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/psychat-gateway/internal/normalize"
	"github.com/2389/psychat-gateway/internal/store"
	"github.com/2389/psychat-gateway/internal/upstream"
)

// DefaultChunkDelay separates content events in StreamAnswer.
const DefaultChunkDelay = 50 * time.Millisecond

// Upstream is what the service needs from the LLM client.
type Upstream interface {
	ThreadCreator
	SendToThread(ctx context.Context, threadID, message string) (map[string]any, error)
	SendToWorkspace(ctx context.Context, message string) (map[string]any, error)
}

// Observer receives turn outcomes and relay events, typically for metrics.
type Observer interface {
	ObserveTurn(mode, outcome string, elapsed time.Duration)
	ObserveRelayEvent(eventType string)
}

// Config is built once at startup and passed to New.
type Config struct {
	// BaseURL and WorkspaceSlug must both be set for turns to reach upstream
	BaseURL       string
	WorkspaceSlug string

	// ChunkDelay separates relay content events; zero uses DefaultChunkDelay
	ChunkDelay time.Duration
}

// Configured reports whether the upstream target is known.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.BaseURL) != "" && strings.TrimSpace(c.WorkspaceSlug) != ""
}

// ChatTurn is one inbound user message.
type ChatTurn struct {
	Message   string
	SessionID string
}

// Reply is the normalized answer to a turn.
type Reply struct {
	Text      string
	SessionID string
	ThreadID  string

	// Shape names the response matcher that produced Text
	Shape string
}

// Service is the conversation layer between HTTP handlers and the upstream workspace.
type Service struct {
	cfg        Config
	upstream   Upstream
	resolver   *Resolver
	normalizer *normalize.Normalizer
	observer   Observer
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithObserver registers a turn observer.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithNormalizer replaces the default response normalizer.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(s *Service) { s.normalizer = n }
}

// New creates a Service. sessions may be nil, in which case every turn
// uses the workspace-general endpoint.
func New(cfg Config, sessions store.SessionStore, up Upstream, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkDelay <= 0 {
		cfg.ChunkDelay = DefaultChunkDelay
	}

	s := &Service{
		cfg:        cfg,
		upstream:   up,
		resolver:   NewResolver(sessions, up, logger),
		normalizer: normalize.New(logger),
		logger:     logger.With("component", "conversation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configured reports whether turns can reach the upstream workspace.
func (s *Service) Configured() bool {
	return s.cfg.Configured()
}

// Answer runs one turn to completion. Failures are always *Error.
func (s *Service) Answer(ctx context.Context, turn ChatTurn) (reply *Reply, err error) {
	start := time.Now()
	mode := "workspace"
	defer func() {
		if s.observer == nil {
			return
		}
		outcome := "ok"
		if err != nil {
			outcome = KindOf(err).String()
		}
		s.observer.ObserveTurn(mode, outcome, time.Since(start))
	}()

	if !s.cfg.Configured() {
		s.logger.Error("upstream not configured",
			"base_url_set", strings.TrimSpace(s.cfg.BaseURL) != "",
			"workspace_set", strings.TrimSpace(s.cfg.WorkspaceSlug) != "")
		return nil, &Error{
			Kind:    KindServiceNotConfigured,
			Message: "the language model service is not configured",
		}
	}

	tc, err := s.resolver.Resolve(ctx, turn.SessionID)
	if err != nil {
		return nil, s.fail("resolve thread", turn, err)
	}
	if tc.Scoped() {
		mode = "thread"
	}

	var body map[string]any
	if tc.Scoped() {
		body, err = s.upstream.SendToThread(ctx, tc.ThreadID, turn.Message)
	} else {
		body, err = s.upstream.SendToWorkspace(ctx, turn.Message)
	}

	var text, shape string
	var uerr *upstream.Error
	switch {
	case errors.As(err, &uerr) && uerr.Kind == upstream.KindMalformed:
		// An unparseable 2xx reply is a display problem, not a failed turn
		s.logger.Warn("malformed upstream reply, using fallback",
			"session_id", turn.SessionID,
			"op", uerr.Op,
			"body", uerr.Body)
		text, shape = normalize.FallbackReply, "fallback"
	case err != nil:
		return nil, s.fail("dispatch", turn, err)
	default:
		text, shape = s.normalizer.Reply(body)
	}

	s.logger.Debug("turn answered",
		"session_id", turn.SessionID,
		"thread_id", tc.ThreadID,
		"shape", shape,
		"reply_len", len(text))

	return &Reply{
		Text:      text,
		SessionID: turn.SessionID,
		ThreadID:  tc.ThreadID,
		Shape:     shape,
	}, nil
}

func (s *Service) fail(stage string, turn ChatTurn, err error) *Error {
	cerr := classify(err)

	attrs := []any{
		"stage", stage,
		"session_id", turn.SessionID,
		"kind", cerr.Kind.String(),
		"error", err,
	}
	if cerr.UpstreamStatus != 0 {
		attrs = append(attrs, "upstream_status", cerr.UpstreamStatus)
	}

	switch {
	case errors.Is(err, context.Canceled):
		s.logger.Debug("turn canceled by caller", attrs...)
	case cerr.Kind == KindInternal:
		s.logger.Error("turn failed", attrs...)
	default:
		s.logger.Warn("turn failed", attrs...)
	}
	return cerr
}
