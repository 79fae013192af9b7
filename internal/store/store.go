// ABOUTME: Store interface and data types for psychat-gateway persistence
// ABOUTME: Defines Session, Feedback, Resource structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateSession is returned when trying to create a session whose ID already exists
var ErrDuplicateSession = errors.New("session already exists")

// Session maps a client-chosen session identifier to an upstream conversation thread.
// ThreadID is empty until the first chat turn binds one.
type Session struct {
	ID          string
	ThreadID    string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Rating values accepted for feedback
const (
	RatingNegative = 0
	RatingPositive = 1
)

// Feedback is a user's rating of a single bot reply
type Feedback struct {
	ID          string
	MessageID   string
	SessionID   string
	UserQuery   string
	BotResponse string
	Rating      int
	Comment     string
	CreatedAt   time.Time
}

// Resource is a static support resource listing (hotline, article, clinic)
type Resource struct {
	ID          string
	Title       string
	Description string
	Category    string
	LocationTag string
	URL         string
	Phone       string
	CreatedAt   time.Time
}

// ResourceFilter narrows ListResources. Empty fields match everything.
type ResourceFilter struct {
	Category string
	Location string
	Limit    int
}

// SessionStore is the subset of persistence the conversation layer needs.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*Session, error)

	// UpsertThreadID binds threadID to the session, inserting the session with
	// displayName if it does not exist. A session that already carries a thread
	// keeps it; the returned Session always holds the effective binding.
	UpsertThreadID(ctx context.Context, sessionID, threadID, displayName string) (*Session, error)
}

// Store defines the interface for session, feedback and resource persistence
type Store interface {
	SessionStore

	// Sessions
	CreateSession(ctx context.Context, session *Session) error
	ListSessions(ctx context.Context, limit int) ([]*Session, error)
	RenameSession(ctx context.Context, id, displayName string) error
	DeleteSession(ctx context.Context, id string) error

	// Feedback
	SaveFeedback(ctx context.Context, fb *Feedback) error
	ListFeedback(ctx context.Context, sessionID string, limit int) ([]*Feedback, error)

	// Resources
	CreateResource(ctx context.Context, res *Resource) error
	ListResources(ctx context.Context, filter ResourceFilter) ([]*Resource, error)

	// Ping reports whether the backing database is reachable
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}

// DefaultDisplayName derives the display name given to sessions created implicitly by a chat turn.
func DefaultDisplayName(sessionID string) string {
	short := sessionID
	if runes := []rune(short); len(runes) > 8 {
		short = string(runes[:8])
	}
	return "Session " + short
}
