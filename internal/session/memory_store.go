package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	meta      Meta
	turns     []Turn
	expiresAt time.Time
}

// MemoryStore is the in-process store used when Redis is not configured.
// Expired entries are dropped on access and by Sweep.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Used by tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Create(ctx context.Context, meta Meta) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(meta.ID) == "" {
		meta.ID = NewID()
	}
	now := s.now()
	meta.CreatedAt, meta.UpdatedAt = now, now
	s.entries[meta.ID] = &memoryEntry{meta: meta, expiresAt: now.Add(s.ttl)}
	return meta.ID, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.live(id)
	if err != nil {
		return nil, err
	}
	meta := e.meta
	return &meta, nil
}

func (s *MemoryStore) Append(ctx context.Context, id string, turns ...Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.live(id)
	if err != nil {
		return err
	}
	e.turns = append(e.turns, stamp(turns, s.now())...)
	return nil
}

func (s *MemoryStore) History(ctx context.Context, id string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.live(id)
	if err != nil {
		return nil, err
	}
	out := make([]Turn, len(e.turns))
	copy(out, e.turns)
	return out, nil
}

func (s *MemoryStore) SaveDraft(ctx context.Context, id string, draft Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.live(id)
	if err != nil {
		return err
	}
	e.meta.Draft = draft
	e.meta.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.live(id); err != nil {
		return err
	}
	delete(s.entries, id)
	return nil
}

// Sweep drops every expired entry and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartSweeper runs Sweep every interval until ctx is done.
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// live returns the entry and slides its expiry. Caller holds mu.
func (s *MemoryStore) live(id string) (*memoryEntry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := s.now()
	if !now.Before(e.expiresAt) {
		delete(s.entries, id)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.expiresAt = now.Add(s.ttl)
	return e, nil
}

var _ Store = (*MemoryStore)(nil)
