// ABOUTME: Tests for the conversation Service
// ABOUTME: Verifies thread binding, dispatch, failure mapping and the relay sequence

package conversation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/psychat-gateway/internal/normalize"
	"github.com/2389/psychat-gateway/internal/store"
	"github.com/2389/psychat-gateway/internal/upstream"
)

// fakeWorkspace stands in for the AnythingLLM workspace API.
type fakeWorkspace struct {
	server *httptest.Server

	creates        atomic.Int32
	threadChats    atomic.Int32
	workspaceChats atomic.Int32
	requests       atomic.Int32

	mu         sync.Mutex
	nextThread int
	lastThread string

	// chat, when set, answers both chat endpoints
	chat http.HandlerFunc
	// create, when set, answers thread creation
	create http.HandlerFunc
}

func newFakeWorkspace(t *testing.T) *fakeWorkspace {
	t.Helper()
	fw := &fakeWorkspace{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/workspace/care/thread/new", func(w http.ResponseWriter, r *http.Request) {
		fw.creates.Add(1)
		if fw.create != nil {
			fw.create(w, r)
			return
		}
		fw.mu.Lock()
		fw.nextThread++
		id := fmt.Sprintf("thread-%d", fw.nextThread)
		fw.mu.Unlock()
		fmt.Fprintf(w, `{"thread":{"slug":%q}}`, id)
	})
	mux.HandleFunc("POST /api/v1/workspace/care/thread/{thread}/chat", func(w http.ResponseWriter, r *http.Request) {
		fw.threadChats.Add(1)
		fw.mu.Lock()
		fw.lastThread = r.PathValue("thread")
		fw.mu.Unlock()
		fw.answer(w, r)
	})
	mux.HandleFunc("POST /api/v1/workspace/care/chat", func(w http.ResponseWriter, r *http.Request) {
		fw.workspaceChats.Add(1)
		fw.answer(w, r)
	})

	fw.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fw.requests.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(fw.server.Close)
	return fw
}

func (fw *fakeWorkspace) answer(w http.ResponseWriter, r *http.Request) {
	if fw.chat != nil {
		fw.chat(w, r)
		return
	}
	_, _ = w.Write([]byte(`{"textResponse":"  I hear you.  "}`))
}

func (fw *fakeWorkspace) config() Config {
	return Config{
		BaseURL:       fw.server.URL + "/api",
		WorkspaceSlug: "care",
		ChunkDelay:    time.Millisecond,
	}
}

func (fw *fakeWorkspace) client(timeout time.Duration) *upstream.Client {
	cfg := fw.config()
	return upstream.New(upstream.Config{
		BaseURL:       cfg.BaseURL,
		WorkspaceSlug: cfg.WorkspaceSlug,
		Timeout:       timeout,
	})
}

func createTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestService(t *testing.T, fw *fakeWorkspace, sessions store.SessionStore, opts ...Option) *Service {
	t.Helper()
	return New(fw.config(), sessions, fw.client(2*time.Second), nil, opts...)
}

func TestAnswer_WithoutSessionUsesWorkspaceChat(t *testing.T) {
	fw := newFakeWorkspace(t)
	svc := newTestService(t, fw, createTestStore(t))

	reply, err := svc.Answer(context.Background(), ChatTurn{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "I hear you.", reply.Text)
	assert.Empty(t, reply.ThreadID)
	assert.Equal(t, int32(1), fw.workspaceChats.Load())
	assert.Equal(t, int32(0), fw.creates.Load())
}

func TestAnswer_NewSessionBindsThreadOnce(t *testing.T) {
	fw := newFakeWorkspace(t)
	testStore := createTestStore(t)
	svc := newTestService(t, fw, testStore)
	ctx := context.Background()

	first, err := svc.Answer(ctx, ChatTurn{Message: "hi", SessionID: "client-session-1"})
	require.NoError(t, err)
	assert.Equal(t, "thread-1", first.ThreadID)

	session, err := testStore.GetSession(ctx, "client-session-1")
	require.NoError(t, err)
	assert.Equal(t, "thread-1", session.ThreadID)
	assert.Equal(t, store.DefaultDisplayName("client-session-1"), session.DisplayName)

	second, err := svc.Answer(ctx, ChatTurn{Message: "again", SessionID: "client-session-1"})
	require.NoError(t, err)
	assert.Equal(t, "thread-1", second.ThreadID)

	assert.Equal(t, int32(1), fw.creates.Load(), "second turn must reuse the bound thread")
	assert.Equal(t, int32(2), fw.threadChats.Load())
	assert.Equal(t, "thread-1", fw.lastThread)
}

func TestAnswer_ExistingSessionWithoutThreadGetsBound(t *testing.T) {
	fw := newFakeWorkspace(t)
	testStore := createTestStore(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, testStore.CreateSession(ctx, &store.Session{
		ID: "named", DisplayName: "Sunday", CreatedAt: now, UpdatedAt: now,
	}))

	svc := newTestService(t, fw, testStore)
	reply, err := svc.Answer(ctx, ChatTurn{Message: "hi", SessionID: "named"})
	require.NoError(t, err)
	assert.Equal(t, "thread-1", reply.ThreadID)

	session, err := testStore.GetSession(ctx, "named")
	require.NoError(t, err)
	assert.Equal(t, "thread-1", session.ThreadID)
	assert.Equal(t, "Sunday", session.DisplayName)
}

func TestAnswer_ConcurrentFirstTurnsShareOneThread(t *testing.T) {
	fw := newFakeWorkspace(t)
	release := make(chan struct{})
	fw.create = func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{"slug":"only-thread"}`))
	}
	mock := store.NewMockStore()
	svc := newTestService(t, fw, mock)

	const turns = 5
	var wg sync.WaitGroup
	threads := make([]string, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reply, err := svc.Answer(context.Background(), ChatTurn{Message: "hi", SessionID: "race"})
			if assert.NoError(t, err) {
				threads[i] = reply.ThreadID
			}
		}(i)
	}

	// Let every turn reach the resolver before the create call returns
	require.Eventually(t, func() bool { return fw.creates.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, id := range threads {
		assert.Equal(t, "only-thread", id)
	}
	assert.Equal(t, int32(1), fw.creates.Load())
	assert.LessOrEqual(t, mock.UpsertCalls, turns)
}

func TestAnswer_UpstreamRejected(t *testing.T) {
	fw := newFakeWorkspace(t)
	fw.chat = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "boom"}}`))
	}
	svc := newTestService(t, fw, nil)

	_, err := svc.Answer(context.Background(), ChatTurn{Message: "hi"})
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindUpstreamRejected, cerr.Kind)
	assert.Equal(t, "boom", cerr.Message)
	assert.Equal(t, 500, cerr.UpstreamStatus)
	assert.Equal(t, http.StatusBadGateway, cerr.Kind.HTTPStatus())
}

func TestAnswer_BoundThreadRejectedFailsTurn(t *testing.T) {
	fw := newFakeWorkspace(t)
	fw.chat = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"thread not found"}`))
	}
	mock := store.NewMockStore()
	_, err := mock.UpsertThreadID(context.Background(), "s", "deleted-thread", "s")
	require.NoError(t, err)

	svc := newTestService(t, fw, mock)
	_, err = svc.Answer(context.Background(), ChatTurn{Message: "hi", SessionID: "s"})
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindUpstreamRejected, cerr.Kind)
	assert.Equal(t, "thread not found", cerr.Message)
	assert.Equal(t, int32(0), fw.creates.Load(), "a bound thread is never recreated")

	session, err := mock.GetSession(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, "deleted-thread", session.ThreadID)
}

func TestAnswer_ServiceNotConfigured(t *testing.T) {
	fw := newFakeWorkspace(t)

	cfg := fw.config()
	cfg.WorkspaceSlug = ""
	svc := New(cfg, createTestStore(t), fw.client(time.Second), nil)

	_, err := svc.Answer(context.Background(), ChatTurn{Message: "hi", SessionID: "s"})
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindServiceNotConfigured, cerr.Kind)
	assert.Equal(t, int32(0), fw.requests.Load(), "no network call may be attempted")
}

func TestAnswer_UpstreamUnavailable(t *testing.T) {
	fw := newFakeWorkspace(t)
	fw.chat = func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}
	svc := New(fw.config(), nil, fw.client(30*time.Millisecond), nil)

	_, err := svc.Answer(context.Background(), ChatTurn{Message: "hi"})
	assert.Equal(t, KindUpstreamUnavailable, KindOf(err))
}

func TestAnswer_MalformedBodyFallsBack(t *testing.T) {
	fw := newFakeWorkspace(t)
	fw.chat = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sources":[],"close":true}`))
	}
	svc := newTestService(t, fw, nil)

	reply, err := svc.Answer(context.Background(), ChatTurn{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, normalize.FallbackReply, reply.Text)
	assert.Equal(t, "fallback", reply.Shape)
}

func TestAnswer_UnparseableBodyFallsBack(t *testing.T) {
	fw := newFakeWorkspace(t)
	fw.chat = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>gateway hiccup</html>`))
	}
	svc := newTestService(t, fw, nil)

	reply, err := svc.Answer(context.Background(), ChatTurn{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, normalize.FallbackReply, reply.Text)
}

func TestAnswer_UnparseableBodyWarnsOnce(t *testing.T) {
	fw := newFakeWorkspace(t)
	fw.chat = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>gateway hiccup</html>`))
	}
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	svc := New(fw.config(), nil, fw.client(2*time.Second), logger)

	reply, err := svc.Answer(context.Background(), ChatTurn{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "fallback", reply.Shape)
	assert.Equal(t, 1, strings.Count(logs.String(), "level=WARN"), "logs:\n%s", logs.String())
	assert.Contains(t, logs.String(), "malformed upstream reply")
}

func TestAnswer_ThreadCreateWithoutIdentifier(t *testing.T) {
	fw := newFakeWorkspace(t)
	fw.create = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"created"}`))
	}
	svc := newTestService(t, fw, store.NewMockStore())

	_, err := svc.Answer(context.Background(), ChatTurn{Message: "hi", SessionID: "s"})
	assert.Equal(t, KindUpstreamRejected, KindOf(err))
	assert.Equal(t, int32(0), fw.threadChats.Load())
}

type brokenStore struct{}

func (brokenStore) GetSession(ctx context.Context, id string) (*store.Session, error) {
	return nil, errors.New("disk on fire")
}

func (brokenStore) UpsertThreadID(ctx context.Context, sessionID, threadID, displayName string) (*store.Session, error) {
	return nil, errors.New("disk on fire")
}

func TestAnswer_StoreFailureIsInternal(t *testing.T) {
	fw := newFakeWorkspace(t)
	svc := newTestService(t, fw, brokenStore{})

	_, err := svc.Answer(context.Background(), ChatTurn{Message: "hi", SessionID: "s"})
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindInternal, cerr.Kind)
	assert.NotContains(t, cerr.Message, "disk on fire", "internal detail must not reach the client")
}

type recordingObserver struct {
	mu     sync.Mutex
	turns  []string
	events []string
}

func (r *recordingObserver) ObserveTurn(mode, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, mode+":"+outcome)
}

func (r *recordingObserver) ObserveRelayEvent(eventType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func collect(ch <-chan Event) []Event {
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestStreamAnswer_EmitsStartContentEnd(t *testing.T) {
	fw := newFakeWorkspace(t)
	fw.chat = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":{"text":"take a slow  breath\nwith me"}}`))
	}
	obs := &recordingObserver{}
	svc := newTestService(t, fw, nil, WithObserver(obs))

	events := collect(svc.StreamAnswer(context.Background(), ChatTurn{Message: "hi"}))

	require.Len(t, events, 1+6+1)
	assert.Equal(t, EventStart, events[0].Type)
	var words []string
	for _, ev := range events[1:7] {
		assert.Equal(t, EventContent, ev.Type)
		words = append(words, ev.Content)
	}
	assert.Equal(t, []string{"take ", "a ", "slow ", "breath ", "with ", "me "}, words)
	assert.Equal(t, EventEnd, events[7].Type)

	assert.Equal(t, []string{"workspace:ok"}, obs.turns)
	assert.Len(t, obs.events, 8)
}

func TestStreamAnswer_FailureEmitsStartThenError(t *testing.T) {
	fw := newFakeWorkspace(t)
	fw.chat = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"invalid message"}`))
	}
	svc := newTestService(t, fw, nil)

	events := collect(svc.StreamAnswer(context.Background(), ChatTurn{Message: "hi"}))

	require.Len(t, events, 2)
	assert.Equal(t, EventStart, events[0].Type)
	assert.Equal(t, EventError, events[1].Type)
	assert.Equal(t, "invalid message", events[1].Error)
	assert.Equal(t, "upstream_rejected", events[1].Code)
}

func TestStreamAnswer_StopsWhenCallerLeaves(t *testing.T) {
	fw := newFakeWorkspace(t)
	fw.chat = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"textResponse":"` + strings.Repeat("word ", 200) + `"}`))
	}
	cfg := fw.config()
	cfg.ChunkDelay = 5 * time.Millisecond
	svc := New(cfg, nil, fw.client(time.Second), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := svc.StreamAnswer(ctx, ChatTurn{Message: "hi"})

	var received int
	for ev := range ch {
		received++
		if ev.Type == EventContent && received == 3 {
			cancel()
		}
	}

	assert.Less(t, received, 202, "relay must stop after cancellation")
}

func TestChunk(t *testing.T) {
	assert.Equal(t, []string{"one ", "two ", "three "}, Chunk("  one two\t\nthree "))
	assert.Empty(t, Chunk("   "))
}
