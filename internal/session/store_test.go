package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T) Store

func stores() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store { return NewMemoryStore(time.Hour) },
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedisStore(client, time.Hour)
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			id, err := store.Create(ctx, Meta{Role: "patient", UserEmail: "john@example.com"})
			require.NoError(t, err)
			assert.Len(t, id, 32)

			history, err := store.History(ctx, id)
			require.NoError(t, err)
			assert.Empty(t, history)

			const n = 7
			for i := 0; i < n; i++ {
				role := RoleUser
				if i%2 == 1 {
					role = RoleAssistant
				}
				require.NoError(t, store.Append(ctx, id, Turn{Role: role, Content: fmt.Sprintf("turn %d", i)}))
			}

			history, err = store.History(ctx, id)
			require.NoError(t, err)
			require.Len(t, history, n)
			for i, turn := range history {
				assert.Equal(t, fmt.Sprintf("turn %d", i), turn.Content)
				assert.False(t, turn.CreatedAt.IsZero())
			}
		})
	}
}

func TestStoreAppendBatchKeepsOrder(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()
			id, err := store.Create(ctx, Meta{Role: "patient"})
			require.NoError(t, err)

			require.NoError(t, store.Append(ctx, id,
				Turn{Role: RoleUser, Content: "book me in"},
				Turn{Role: RoleAssistant, Content: "Which date would you like?"},
			))
			history, err := store.History(ctx, id)
			require.NoError(t, err)
			require.Len(t, history, 2)
			assert.Equal(t, RoleUser, history[0].Role)
			assert.Equal(t, RoleAssistant, history[1].Role)
		})
	}
}

func TestStoreUnknownSession(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			err := store.Append(ctx, "missing", Turn{Role: RoleUser, Content: "hi"})
			assert.True(t, errors.Is(err, ErrNotFound), "append: %v", err)

			_, err = store.History(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			assert.ErrorIs(t, store.SaveDraft(ctx, "missing", Draft{Name: "x"}), ErrNotFound)
			assert.ErrorIs(t, store.Delete(ctx, "missing"), ErrNotFound)
		})
	}
}

func TestStoreDraftAndDelete(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()
			id, err := store.Create(ctx, Meta{Role: "patient", UserID: "u-1"})
			require.NoError(t, err)

			draft := Draft{DoctorID: 5, Date: "2025-06-10"}
			require.NoError(t, store.SaveDraft(ctx, id, draft))

			meta, err := store.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "patient", meta.Role)
			assert.Equal(t, "u-1", meta.UserID)
			assert.Equal(t, draft, meta.Draft)

			require.NoError(t, store.Delete(ctx, id))
			_, err = store.Get(ctx, id)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemoryStoreSlidingExpiry(t *testing.T) {
	now := time.Date(2025, 6, 9, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore(time.Hour).WithClock(func() time.Time { return now })
	ctx := context.Background()

	id, err := store.Create(ctx, Meta{Role: "patient"})
	require.NoError(t, err)

	now = now.Add(50 * time.Minute)
	require.NoError(t, store.Append(ctx, id, Turn{Role: RoleUser, Content: "still here"}))

	now = now.Add(50 * time.Minute)
	history, err := store.History(ctx, id)
	require.NoError(t, err, "access should have slid the expiry")
	assert.Len(t, history, 1)

	now = now.Add(61 * time.Minute)
	_, err = store.History(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreSlidingExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, time.Hour)
	ctx := context.Background()
	id, err := store.Create(ctx, Meta{Role: "doctor"})
	require.NoError(t, err)

	mr.FastForward(50 * time.Minute)
	require.NoError(t, store.Append(ctx, id, Turn{Role: RoleUser, Content: "stats please"}))
	assert.Equal(t, time.Hour, mr.TTL(metaKey(id)))
	assert.Equal(t, time.Hour, mr.TTL(turnsKey(id)))

	mr.FastForward(50 * time.Minute)
	_, err = store.History(ctx, id)
	require.NoError(t, err)

	mr.FastForward(61 * time.Minute)
	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDraftMergeAndMissing(t *testing.T) {
	d := Draft{DoctorID: 5}
	d = d.Merge(Draft{Date: "2025-06-10", Name: "  John Doe "})
	assert.Equal(t, int64(5), d.DoctorID)
	assert.Equal(t, "John Doe", d.Name)
	assert.Equal(t, []string{"time", "email"}, d.Missing())
	assert.False(t, d.IsZero())
	assert.True(t, Draft{}.IsZero())
}

func TestNewIDIsUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID()
		require.Len(t, id, 32)
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestMemoryStoreSweepDropsUnreadExpiredSessions(t *testing.T) {
	now := time.Date(2025, 6, 9, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore(time.Hour).WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Create(ctx, Meta{Role: "patient"})
		require.NoError(t, err)
	}
	now = now.Add(30 * time.Minute)
	kept, err := store.Create(ctx, Meta{Role: "doctor"})
	require.NoError(t, err)

	now = now.Add(45 * time.Minute)
	assert.Equal(t, 3, store.Sweep())
	assert.Equal(t, 1, store.Len())
	_, err = store.Get(ctx, kept)
	assert.NoError(t, err)
	assert.Zero(t, store.Sweep())
}

func TestMemoryStoreSweeperStopsWithContext(t *testing.T) {
	now := time.Date(2025, 6, 9, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	store := NewMemoryStore(time.Minute).WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := store.Create(ctx, Meta{Role: "patient"})
	require.NoError(t, err)
	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	store.StartSweeper(ctx, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
}
