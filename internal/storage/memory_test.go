package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"security-gate/internal/domain"
	"security-gate/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage_UpdateCreatesState(t *testing.T) {
	storage := newMemoryStorage(nil, domain.DayWindow, time.Now)
	defer storage.Close()

	now := time.Now()
	storage.Update("192.168.1.1", func(state *domain.ClientWindowState) {
		assert.Empty(t, state.Minute)
		state.Minute = append(state.Minute, now)
		state.LastSeen = now
	})

	snapshot, ok := storage.Snapshot("192.168.1.1")
	require.True(t, ok)
	assert.Len(t, snapshot.Minute, 1)
	assert.Equal(t, now, snapshot.LastSeen)
	assert.Equal(t, 1, storage.Len())
}

func TestMemoryStorage_SnapshotIsCopy(t *testing.T) {
	storage := newMemoryStorage(nil, domain.DayWindow, time.Now)
	defer storage.Close()

	until := time.Now().Add(time.Minute)
	storage.Update("10.0.0.1", func(state *domain.ClientWindowState) {
		state.Day = append(state.Day, time.Now())
		state.BlockedUntil = &until
	})

	snapshot, ok := storage.Snapshot("10.0.0.1")
	require.True(t, ok)
	snapshot.Day = append(snapshot.Day, time.Now())
	*snapshot.BlockedUntil = time.Time{}

	again, _ := storage.Snapshot("10.0.0.1")
	assert.Len(t, again.Day, 1)
	assert.Equal(t, until, *again.BlockedUntil)
}

func TestMemoryStorage_SnapshotMissing(t *testing.T) {
	storage := newMemoryStorage(nil, domain.DayWindow, time.Now)
	defer storage.Close()

	snapshot, ok := storage.Snapshot("unknown")
	assert.False(t, ok)
	assert.Nil(t, snapshot)
}

func TestMemoryStorage_Reset(t *testing.T) {
	storage := newMemoryStorage(nil, domain.DayWindow, time.Now)
	defer storage.Close()

	storage.Update("10.0.0.1", func(state *domain.ClientWindowState) {})

	assert.True(t, storage.Reset("10.0.0.1"))
	assert.False(t, storage.Reset("10.0.0.1"))
	assert.Equal(t, 0, storage.Len())
}

func TestMemoryStorage_ConcurrentUpdatesSameClient(t *testing.T) {
	storage := newMemoryStorage(nil, domain.DayWindow, time.Now)
	defer storage.Close()

	const workers = 50
	const perWorker = 100

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				storage.Update("shared", func(state *domain.ClientWindowState) {
					state.Day = append(state.Day, time.Now())
				})
			}
		}()
	}
	wg.Wait()

	snapshot, ok := storage.Snapshot("shared")
	require.True(t, ok)
	assert.Len(t, snapshot.Day, workers*perWorker)
}

func TestMemoryStorage_CleanupIdleClients(t *testing.T) {
	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	storage := newMemoryStorage(nil, time.Hour, func() time.Time { return now })
	defer storage.Close()

	activeBan := now.Add(time.Minute)
	expiredBan := now.Add(-time.Minute)

	storage.Update("idle", func(state *domain.ClientWindowState) {
		state.LastSeen = now.Add(-2 * time.Hour)
	})
	storage.Update("recent", func(state *domain.ClientWindowState) {
		state.LastSeen = now.Add(-time.Minute)
	})
	storage.Update("idle-but-banned", func(state *domain.ClientWindowState) {
		state.LastSeen = now.Add(-2 * time.Hour)
		state.BlockedUntil = &activeBan
	})
	storage.Update("idle-expired-ban", func(state *domain.ClientWindowState) {
		state.LastSeen = now.Add(-2 * time.Hour)
		state.BlockedUntil = &expiredBan
	})

	removed := storage.cleanupIdleClients()

	assert.Equal(t, 2, removed)
	_, ok := storage.Snapshot("recent")
	assert.True(t, ok)
	_, ok = storage.Snapshot("idle-but-banned")
	assert.True(t, ok)
	_, ok = storage.Snapshot("idle")
	assert.False(t, ok)
}

func TestMemoryStorage_GetStats(t *testing.T) {
	now := time.Now()
	storage := newMemoryStorage(nil, domain.DayWindow, func() time.Time { return now })
	defer storage.Close()

	until := now.Add(time.Minute)
	for i := 0; i < 5; i++ {
		storage.Update(fmt.Sprintf("10.0.0.%d", i), func(state *domain.ClientWindowState) {})
	}
	storage.Update("10.0.0.9", func(state *domain.ClientWindowState) {
		state.BlockedUntil = &until
	})

	stats := storage.GetStats()
	assert.Equal(t, 6, stats["clients"])
	assert.Equal(t, 1, stats["blocked_clients"])
	assert.Equal(t, "memory", stats["type"])
}

func TestMemoryStorage_HealthAndClose(t *testing.T) {
	testLogger := logger.NewLogger("error", "text")
	storage := NewMemoryStorage(testLogger)

	storage.Update("10.0.0.1", func(state *domain.ClientWindowState) {})
	assert.NoError(t, storage.Health(context.Background()))

	assert.NoError(t, storage.Close())
	assert.NoError(t, storage.Close())
	assert.Equal(t, 0, storage.Len())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, storage.Health(ctx), context.Canceled)
}
