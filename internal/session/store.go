// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 rust-auth-back Contributors

package session

import (
	"context"
	"sync"
	"time"
)

// DefaultIdleTimeout is the sliding idle expiry applied when no timeout is
// configured: a session untouched for an hour is destroyed.
const DefaultIdleTimeout = 3600 * time.Second

// Store defines how session entries are stored and retrieved. The identity
// slot is kept separate from the named fields so that a session can carry
// payload (counters, preferences) before authentication without being
// treated as logged in.
type Store interface {
	// Create allocates a fresh unguessable session ID with an empty entry.
	// Session IDs only ever originate here; an ID from any other source
	// must be rejected by Exists before it is used.
	Create(ctx context.Context) (string, error)

	// Exists reports whether the session is present and unexpired. A hit
	// slides the entry's idle deadline.
	Exists(ctx context.Context, id string) (bool, error)

	// Get returns the value of a named field, or false if the session or
	// field does not exist. A hit slides the entry's idle deadline.
	Get(ctx context.Context, id, field string) (any, bool, error)

	// Set upserts a named field. An ID whose entry expired since it was
	// last checked gets a fresh entry, so a mid-request expiry does not
	// fail the request. Callers must only pass store-issued IDs.
	Set(ctx context.Context, id, field string, value any) error

	// Delete removes a named field. Unknown sessions and absent fields
	// are no-ops.
	Delete(ctx context.Context, id, field string) error

	// Identity returns the authenticated username bound to the session,
	// or "" when the session is unauthenticated or unknown.
	Identity(ctx context.Context, id string) (string, error)

	// SetIdentity binds an authenticated username to the session.
	SetIdentity(ctx context.Context, id, username string) error

	// Fields returns a copy of all named fields of the session.
	Fields(ctx context.Context, id string) (map[string]any, error)

	// Remove deletes the entry entirely. Idempotent.
	Remove(ctx context.Context, id string) error

	// Sweep removes every entry idle longer than the configured timeout,
	// measured against now, and returns the number removed.
	Sweep(now time.Time) int
}

type entry struct {
	values     map[string]any
	identity   string
	lastAccess time.Time
}

func (e *entry) expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(e.lastAccess) > timeout
}

// MemoryStore is a process-wide in-memory Store with sliding idle expiry.
// Entries live only for the lifetime of the process; there is no durable
// session persistence across restarts.
type MemoryStore struct {
	mu          sync.RWMutex
	entries     map[string]*entry
	idleTimeout time.Duration
	now         func() time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithIdleTimeout overrides the default sliding idle timeout.
func WithIdleTimeout(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithClock overrides the time source. Used by tests to pin expiry checks
// to deterministic instants.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		entries:     make(map[string]*entry),
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create allocates a fresh session ID with an empty entry.
func (s *MemoryStore) Create(_ context.Context) (string, error) {
	id, err := GenerateID()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = &entry{
		values:     make(map[string]any),
		lastAccess: s.now(),
	}
	return id, nil
}

// live returns the entry for id, dropping it first if it has already passed
// its idle deadline. Callers must hold the write lock.
func (s *MemoryStore) live(id string) *entry {
	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	if e.expired(s.now(), s.idleTimeout) {
		delete(s.entries, id)
		return nil
	}
	return e
}

// Exists reports whether the session is live and slides its idle deadline.
func (s *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(id)
	if e == nil {
		return false, nil
	}
	e.lastAccess = s.now()
	return true, nil
}

// Get returns a stored field value and slides the idle deadline.
func (s *MemoryStore) Get(_ context.Context, id, field string) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(id)
	if e == nil {
		return nil, false, nil
	}
	e.lastAccess = s.now()
	v, ok := e.values[field]
	return v, ok, nil
}

// Set upserts a field, recreating the entry if it expired mid-request.
func (s *MemoryStore) Set(_ context.Context, id, field string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(id)
	if e == nil {
		e = &entry{values: make(map[string]any)}
		s.entries[id] = e
	}
	e.values[field] = value
	e.lastAccess = s.now()
	return nil
}

// Delete removes a field. A hit on a live entry slides its idle deadline.
func (s *MemoryStore) Delete(_ context.Context, id, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(id)
	if e == nil {
		return nil
	}
	delete(e.values, field)
	e.lastAccess = s.now()
	return nil
}

// Identity returns the authenticated username bound to the session.
func (s *MemoryStore) Identity(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(id)
	if e == nil {
		return "", nil
	}
	e.lastAccess = s.now()
	return e.identity, nil
}

// SetIdentity binds an authenticated username to the session, recreating
// the entry if it expired mid-request.
func (s *MemoryStore) SetIdentity(_ context.Context, id, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(id)
	if e == nil {
		e = &entry{values: make(map[string]any)}
		s.entries[id] = e
	}
	e.identity = username
	e.lastAccess = s.now()
	return nil
}

// Fields returns a copy of all named fields of the session.
func (s *MemoryStore) Fields(_ context.Context, id string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(id)
	if e == nil {
		return nil, nil
	}
	e.lastAccess = s.now()
	out := make(map[string]any, len(e.values))
	for k, v := range e.values {
		out[k] = v
	}
	return out, nil
}

// Remove deletes the entry entirely. Idempotent.
func (s *MemoryStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// Sweep removes every entry idle longer than the timeout and returns the
// number removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if e.expired(now, s.idleTimeout) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries, counting entries past their idle
// deadline that have not been swept yet.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)
