package sessions

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store with in-process state. Suitable for
// single-instance deployments and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession

	ttl        time.Duration
	reapTicker *time.Ticker
	reapDone   chan struct{}
	reapOnce   sync.Once
	nowFn      func() time.Time
}

type memorySession struct {
	// mu guards everything below. Reaping takes the same lock, so an
	// in-flight AppendEvent can never race a removal decision.
	mu              sync.Mutex
	id              string
	protocolVersion string
	createdAt       time.Time
	lastActiveAt    time.Time
	nextSeq         int64
	events          []Event
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithTTL sets the idle lifetime of a session.
func WithTTL(ttl time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) { s.ttl = ttl }
}

// withNow overrides the clock, for expiry tests.
func withNow(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) { s.nowFn = now }
}

// NewMemoryStore creates an in-memory session store and starts its reaper.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*memorySession),
		ttl:      30 * time.Minute,
		reapDone: make(chan struct{}),
		nowFn:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Sweep at a quarter of the TTL so an idle session overstays by at most
	// 25%.
	s.reapTicker = time.NewTicker(s.ttl / 4)
	go s.reapLoop()

	return s
}

func (s *MemoryStore) Create(ctx context.Context, protocolVersion string) (*Session, error) {
	now := s.nowFn()
	sess := &memorySession{
		id:              uuid.NewString(),
		protocolVersion: protocolVersion,
		createdAt:       now,
		lastActiveAt:    now,
		nextSeq:         1,
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	return sess.snapshot(), nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastActiveAt = s.nowFn()
	return sess.snapshotLocked(), nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, id string, data []byte) (string, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return "", err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	eventID := strconv.FormatInt(sess.nextSeq, 10)
	sess.nextSeq++
	sess.events = append(sess.events, Event{ID: eventID, Data: data})
	sess.lastActiveAt = s.nowFn()
	return eventID, nil
}

func (s *MemoryStore) ReplaySince(ctx context.Context, id string, lastEventID string) ([]Event, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	var after int64
	if lastEventID != "" {
		// Non-numeric ids compare as zero and replay everything, which is
		// the safe direction.
		after, _ = strconv.ParseInt(lastEventID, 10, 64)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastActiveAt = s.nowFn()

	var out []Event
	for _, ev := range sess.events {
		seq, _ := strconv.ParseInt(ev.ID, 10, 64)
		if seq > after {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *MemoryStore) Touch(ctx context.Context, id string) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	sess.lastActiveAt = s.nowFn()
	sess.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}

// Close stops the reaper and drops all sessions.
func (s *MemoryStore) Close() error {
	s.reapOnce.Do(func() {
		s.reapTicker.Stop()
		close(s.reapDone)
	})

	s.mu.Lock()
	s.sessions = make(map[string]*memorySession)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) lookup(id string) (*memorySession, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *MemoryStore) reapLoop() {
	for {
		select {
		case <-s.reapTicker.C:
			s.reapExpired()
		case <-s.reapDone:
			return
		}
	}
}

// reapExpired removes sessions idle beyond the TTL.
func (s *MemoryStore) reapExpired() {
	cutoff := s.nowFn().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.mu.Lock()
		expired := sess.lastActiveAt.Before(cutoff)
		sess.mu.Unlock()
		if expired {
			delete(s.sessions, id)
		}
	}
}

// expireNow force-runs one sweep, for tests.
func (s *MemoryStore) expireNow() {
	s.reapExpired()
}

func (m *memorySession) snapshot() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *memorySession) snapshotLocked() *Session {
	last := ""
	if n := len(m.events); n > 0 {
		last = m.events[n-1].ID
	}
	return &Session{
		ID:              m.id,
		ProtocolVersion: m.protocolVersion,
		CreatedAt:       m.createdAt,
		LastEventID:     last,
	}
}
