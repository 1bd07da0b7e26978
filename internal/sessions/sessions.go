// Package sessions backs the stream transport with per-session server-push
// state. Stores keep an ordered event log per session so a reconnecting
// client can resume from its last received event id.
package sessions

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound indicates the session does not exist or has been reaped.
var ErrSessionNotFound = errors.New("session not found")

// Event is one server-push frame queued for delivery over the stream
// transport. IDs are unique and ordered within a session.
type Event struct {
	ID   string
	Data []byte
}

// Session is a snapshot of streaming-session metadata. The negotiated
// protocol version is fixed at creation and never changes.
type Session struct {
	ID              string
	ProtocolVersion string
	CreatedAt       time.Time
	LastEventID     string
}

// Store is the session registry consumed by the stream transport. All
// methods are safe for concurrent use; implementations synchronize per
// session id so unrelated sessions never contend.
type Store interface {
	// Create registers a new session pinned to the given protocol version.
	Create(ctx context.Context, protocolVersion string) (*Session, error)
	// Get returns the session snapshot, or ErrSessionNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// AppendEvent queues an event on the session and returns its id.
	AppendEvent(ctx context.Context, id string, data []byte) (string, error)
	// ReplaySince returns the events recorded after lastEventID, oldest
	// first. An empty lastEventID replays the whole log.
	ReplaySince(ctx context.Context, id string, lastEventID string) ([]Event, error)
	// Touch marks the session active, deferring TTL reaping.
	Touch(ctx context.Context, id string) error
	// Delete removes the session and its event log.
	Delete(ctx context.Context, id string) error
	// Count reports the number of live sessions.
	Count(ctx context.Context) (int, error)
	// Close releases store resources.
	Close() error
}
