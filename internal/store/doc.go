// Package store provides persistent storage for the gateway using SQLite.
//
// # Architecture
//
// The store package exposes two interfaces:
//
//   - SessionStore: the narrow contract the conversation layer depends on
//     (GetSession, UpsertThreadID)
//   - Store: SessionStore plus session CRUD, feedback, resources, Ping and Close
//
// SQLiteStore implements Store; MockStore is an in-memory implementation for
// tests that mirrors SQLiteStore's semantics.
//
// # Data Models
//
//   - Session: client session id bound to at most one upstream thread id
//   - Feedback: rating of a single bot reply, optionally tied to a session
//   - Resource: static support resource listing filtered by category/location
//
// # Thread Binding
//
// UpsertThreadID is an insert-or-update guarded by COALESCE, so a thread id
// is written only while the session has none. When two turns race to bind a
// brand-new session, the first write wins and both callers read back the
// same binding.
//
// # SQLite Configuration
//
// Two drivers are linked: modernc.org/sqlite ("sqlite", pure Go, default) and
// github.com/mattn/go-sqlite3 ("sqlite3", cgo). The store enables WAL mode:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// Timestamps are stored as fixed-width UTC text so ORDER BY is chronological.
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateSession: CreateSession with an ID already in use
package store
