package repository

import (
	"context"
	"sync"
	"time"

	"github.com/peerit/auth-service/internal/models"
)

type memorySessionEntry struct {
	session models.Session
	expires time.Time
}

// MemorySessionRepository is the bounded-lifetime in-process fallback used
// when Redis is not available. Entries carry an explicit expiry checked on
// every read, so correctness does not depend on the janitor; the janitor
// only reclaims memory.
type MemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]memorySessionEntry
	now      func() time.Time
}

// NewMemorySessionRepository constructs an in-memory session store.
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[string]memorySessionEntry),
		now:      time.Now,
	}
}

// Create stores a session record with the given TTL.
func (r *MemorySessionRepository) Create(ctx context.Context, session *models.Session, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.SessionID] = memorySessionEntry{
		session: *session,
		expires: r.now().Add(ttl),
	}
	return nil
}

// Get retrieves a live session record by id. Expired entries are removed
// lazily and reported as a miss.
func (r *MemorySessionRepository) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionMiss
	}
	if !entry.expires.After(r.now()) {
		delete(r.sessions, sessionID)
		return nil, ErrSessionMiss
	}
	session := entry.session
	return &session, nil
}

// Update overwrites a session record, refreshing its TTL to the full window.
func (r *MemorySessionRepository) Update(ctx context.Context, session *models.Session, ttl time.Duration) error {
	return r.Create(ctx, session, ttl)
}

// Delete removes a session. Idempotent.
func (r *MemorySessionRepository) Delete(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

// DeleteByUser removes every session owned by the given user.
func (r *MemorySessionRepository) DeleteByUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, entry := range r.sessions {
		if entry.session.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

// Ping always succeeds; the fallback store is process-local.
func (r *MemorySessionRepository) Ping(ctx context.Context) error {
	return nil
}

// Sweep drops expired entries. Memory hygiene only.
func (r *MemorySessionRepository) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	removed := 0
	for id, entry := range r.sessions {
		if !entry.expires.After(now) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps expired entries on the given interval until ctx ends.
func (r *MemorySessionRepository) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}
